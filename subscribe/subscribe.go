// Package subscribe fans updates out to any number of subscribed clients
// without letting a slow client hold up the sender.
package subscribe

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/queue"
)

// DefaultQueueSize is the number of updates buffered for a client before its
// queue starts growing dynamically.
const DefaultQueueSize = 20

// ErrServerShuttingDown is an error returned in case the server is in the
// process of shutting down.
var ErrServerShuttingDown = errors.New("subscription server shutting down")

// Client is used to get notified about updates the caller has subscribed to.
type Client[T any] struct {
	// cancel should be called in case the client no longer wants to
	// subscribe for updates from the server.
	cancel func()

	queue   *queue.ConcurrentQueue
	updates chan T

	quit chan struct{}
	wg   sync.WaitGroup
}

// Updates returns a read-only channel where the updates the client has
// subscribed to will be delivered, in the order they were sent.
func (c *Client[T]) Updates() <-chan T {
	return c.updates
}

// Quit is a channel that will be closed in case the server decides to no
// longer deliver updates to this client.
func (c *Client[T]) Quit() <-chan struct{} {
	return c.quit
}

// Cancel should be called in case the client no longer wants to subscribe
// for updates from the server.
func (c *Client[T]) Cancel() {
	c.cancel()
}

// start begins delivering queued updates.
func (c *Client[T]) start() {
	c.queue.Start()

	c.wg.Add(1)
	go c.deliverUpdates()
}

// stop shuts the client down and waits for delivery to exit.
func (c *Client[T]) stop() {
	close(c.quit)
	c.wg.Wait()
	c.queue.Stop()
}

// deliverUpdates moves updates from the client's queue to its typed updates
// channel.
//
// NOTE: MUST be run as a goroutine.
func (c *Client[T]) deliverUpdates() {
	defer c.wg.Done()

	for {
		select {
		case item := <-c.queue.ChanOut():
			select {
			case c.updates <- item.(T):
			case <-c.quit:
				return
			}

		case <-c.quit:
			return
		}
	}
}

// Server is a struct that manages a set of subscriptions and their
// corresponding clients. Any update will be delivered to all active clients.
type Server[T any] struct {
	clientCounter atomic.Uint64
	numClients    atomic.Int64

	started atomic.Bool
	stopped atomic.Bool

	queueSize int

	clients       map[uint64]*Client[T]
	clientUpdates chan *clientUpdate[T]

	updates chan T

	quit chan struct{}
	wg   sync.WaitGroup
}

// clientUpdate is an internal message sent to the subscriptionHandler to
// either register a new client for subscription or cancel an existing
// subscription.
type clientUpdate[T any] struct {
	// cancel indicates if the update to the client is cancelling an
	// existing client's subscription. If not then this update will be to
	// subscribe a new client.
	cancel bool

	clientID uint64

	// client is the new client that will receive updates. Will be nil in
	// case this is a cancellation update.
	client *Client[T]
}

// NewServer returns a new Server whose clients buffer queueSize updates
// before their queues grow. A non-positive size selects DefaultQueueSize.
func NewServer[T any](queueSize int) *Server[T] {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Server[T]{
		queueSize:     queueSize,
		clients:       make(map[uint64]*Client[T]),
		clientUpdates: make(chan *clientUpdate[T]),
		updates:       make(chan T),
		quit:          make(chan struct{}),
	}
}

// Start starts the Server, making it ready to accept subscriptions and
// updates.
func (s *Server[T]) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	log.Debugf("Subscription server starting")

	s.wg.Add(1)
	go s.subscriptionHandler()

	return nil
}

// Stop stops the server and every client still subscribed.
func (s *Server[T]) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	log.Debugf("Subscription server stopping")

	close(s.quit)
	s.wg.Wait()

	return nil
}

// NumClients returns the number of active subscriptions.
func (s *Server[T]) NumClients() int {
	return int(s.numClients.Load())
}

// Subscribe returns a Client that will receive every update sent after it
// was registered.
func (s *Server[T]) Subscribe() (*Client[T], error) {
	clientID := s.clientCounter.Add(1)

	// The Cancel method sends the cancellation intent to the
	// subscriptionHandler.
	client := &Client[T]{
		queue:   queue.NewConcurrentQueue(s.queueSize),
		updates: make(chan T),
		quit:    make(chan struct{}),
		cancel: func() {
			select {
			case s.clientUpdates <- &clientUpdate[T]{
				cancel:   true,
				clientID: clientID,
			}:
			case <-s.quit:
				return
			}
		},
	}

	select {
	case s.clientUpdates <- &clientUpdate[T]{
		clientID: clientID,
		client:   client,
	}:
	case <-s.quit:
		return nil, ErrServerShuttingDown
	}

	return client, nil
}

// SendUpdate is called to send the passed update to all currently active
// subscription clients.
func (s *Server[T]) SendUpdate(update T) error {
	select {
	case s.updates <- update:
		return nil
	case <-s.quit:
		return ErrServerShuttingDown
	}
}

// subscriptionHandler is the main handler for the Server. It will handle
// incoming updates and subscriptions, and forward the incoming updates to the
// registered clients.
//
// NOTE: MUST be run as a goroutine.
func (s *Server[T]) subscriptionHandler() {
	defer s.wg.Done()

	for {
		select {
		case update := <-s.clientUpdates:
			clientID := update.clientID

			if update.cancel {
				client, ok := s.clients[clientID]
				if ok {
					client.stop()
					delete(s.clients, clientID)
					s.numClients.Add(-1)

					log.Debugf("Client %d unsubscribed",
						clientID)
				}

				continue
			}

			update.client.start()
			s.clients[clientID] = update.client
			s.numClients.Add(1)

			log.Debugf("Client %d subscribed", clientID)

		// The client queues grow as needed, so forwarding only blocks
		// for as long as it takes a queue to accept the update.
		case upd := <-s.updates:
			for _, client := range s.clients {
				select {
				case client.queue.ChanIn() <- upd:
				case <-client.quit:
				case <-s.quit:
					s.stopClients()
					return
				}
			}

		// In case the server is shutting down, notify the clients.
		case <-s.quit:
			s.stopClients()
			return
		}
	}
}

// stopClients stops every client, closing their quit channels.
func (s *Server[T]) stopClients() {
	for id, client := range s.clients {
		client.stop()
		delete(s.clients, id)
	}
	s.numClients.Store(0)
}
