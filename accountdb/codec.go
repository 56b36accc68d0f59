package accountdb

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/lightningnetwork/fogwallet/account"
	"github.com/lightningnetwork/fogwallet/keyimage"
	"github.com/lightningnetwork/fogwallet/ledger"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// Records of a stored txout.
	txOutPublicKeyType   tlv.Type = 0
	txOutCommitmentType  tlv.Type = 2
	txOutMaskedValueType tlv.Type = 4
	txOutValueType       tlv.Type = 6
	txOutKeyImageType    tlv.Type = 8
	txOutBlockIndexType  tlv.Type = 10
	txOutBlockTimeType   tlv.Type = 11

	// Records of a stored spent status.
	spentStatusType       tlv.Type = 0
	unspentBlockCountType tlv.Type = 2
	spentBlockIndexType   tlv.Type = 4
	spentBlockTimeType    tlv.Type = 5

	// Records of the stored discovery state.
	foundBlockCountType tlv.Type = 0
	missedRangesType    tlv.Type = 2
)

const (
	statusUnspent uint8 = 0
	statusSpent   uint8 = 1
)

// encodeTime stores a timestamp as nanoseconds since the unix epoch.
func encodeTime(t time.Time) uint64 {
	return uint64(t.UnixNano())
}

func decodeTime(nanos uint64) time.Time {
	return time.Unix(0, int64(nanos))
}

func serializeTxOut(w io.Writer, txOut *ledger.KnownTxOut) error {
	var blockTime uint64
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(
			txOutPublicKeyType, (*[32]byte)(&txOut.PublicKey),
		),
		tlv.MakePrimitiveRecord(
			txOutCommitmentType, (*[32]byte)(&txOut.Commitment),
		),
		tlv.MakePrimitiveRecord(
			txOutMaskedValueType, &txOut.MaskedValue,
		),
		tlv.MakePrimitiveRecord(txOutValueType, &txOut.Value),
		tlv.MakePrimitiveRecord(
			txOutKeyImageType, (*[32]byte)(&txOut.KeyImage),
		),
		tlv.MakePrimitiveRecord(
			txOutBlockIndexType, &txOut.Block.Index,
		),
	}
	txOut.Block.Timestamp.WhenSome(func(t time.Time) {
		blockTime = encodeTime(t)
		records = append(records, tlv.MakePrimitiveRecord(
			txOutBlockTimeType, &blockTime,
		))
	})

	tlvStream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	return tlvStream.Encode(w)
}

func deserializeTxOut(r io.Reader) (ledger.KnownTxOut, error) {
	var (
		txOut     ledger.KnownTxOut
		blockTime uint64
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(
			txOutPublicKeyType, (*[32]byte)(&txOut.PublicKey),
		),
		tlv.MakePrimitiveRecord(
			txOutCommitmentType, (*[32]byte)(&txOut.Commitment),
		),
		tlv.MakePrimitiveRecord(
			txOutMaskedValueType, &txOut.MaskedValue,
		),
		tlv.MakePrimitiveRecord(txOutValueType, &txOut.Value),
		tlv.MakePrimitiveRecord(
			txOutKeyImageType, (*[32]byte)(&txOut.KeyImage),
		),
		tlv.MakePrimitiveRecord(
			txOutBlockIndexType, &txOut.Block.Index,
		),
		tlv.MakePrimitiveRecord(txOutBlockTimeType, &blockTime),
	)
	if err != nil {
		return txOut, err
	}

	parsedTypes, err := tlvStream.DecodeWithParsedTypes(r)
	if err != nil {
		return txOut, err
	}

	for _, typ := range []tlv.Type{
		txOutPublicKeyType, txOutKeyImageType, txOutBlockIndexType,
	} {
		if _, ok := parsedTypes[typ]; !ok {
			return txOut, fmt.Errorf("missing txout record %d", typ)
		}
	}

	txOut.Block.Timestamp = fn.None[time.Time]()
	if _, ok := parsedTypes[txOutBlockTimeType]; ok {
		txOut.Block.Timestamp = fn.Some(decodeTime(blockTime))
	}

	return txOut, nil
}

func serializeSpentStatus(w io.Writer, status keyimage.SpentStatus) error {
	var (
		records   []tlv.Record
		kind      uint8
		count     uint64
		index     uint64
		blockTime uint64
	)

	switch s := status.(type) {
	case keyimage.Unspent:
		kind = statusUnspent
		count = s.KnownUnspentBlockCount
		records = append(records,
			tlv.MakePrimitiveRecord(spentStatusType, &kind),
			tlv.MakePrimitiveRecord(unspentBlockCountType, &count),
		)

	case keyimage.Spent:
		kind = statusSpent
		index = s.Block.Index
		records = append(records,
			tlv.MakePrimitiveRecord(spentStatusType, &kind),
			tlv.MakePrimitiveRecord(spentBlockIndexType, &index),
		)
		s.Block.Timestamp.WhenSome(func(t time.Time) {
			blockTime = encodeTime(t)
			records = append(records, tlv.MakePrimitiveRecord(
				spentBlockTimeType, &blockTime,
			))
		})

	default:
		return fmt.Errorf("unknown spent status %T", status)
	}

	tlvStream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	return tlvStream.Encode(w)
}

func deserializeSpentStatus(r io.Reader) (keyimage.SpentStatus, error) {
	var (
		kind      uint8
		count     uint64
		index     uint64
		blockTime uint64
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(spentStatusType, &kind),
		tlv.MakePrimitiveRecord(unspentBlockCountType, &count),
		tlv.MakePrimitiveRecord(spentBlockIndexType, &index),
		tlv.MakePrimitiveRecord(spentBlockTimeType, &blockTime),
	)
	if err != nil {
		return nil, err
	}

	parsedTypes, err := tlvStream.DecodeWithParsedTypes(r)
	if err != nil {
		return nil, err
	}
	if _, ok := parsedTypes[spentStatusType]; !ok {
		return nil, fmt.Errorf("missing spent status kind")
	}

	switch kind {
	case statusUnspent:
		return keyimage.Unspent{KnownUnspentBlockCount: count}, nil

	case statusSpent:
		block := ledger.NewBlockMetadata(index)
		if _, ok := parsedTypes[spentBlockTimeType]; ok {
			block.Timestamp = fn.Some(decodeTime(blockTime))
		}

		return keyimage.Spent{Block: block}, nil

	default:
		return nil, fmt.Errorf("unknown spent status kind %d", kind)
	}
}

// blockRangeSize is the encoded size of a block range: two big endian
// uint64s.
const blockRangeSize = 16

func serializeDiscoveryState(w io.Writer, d *account.DiscoveryState) error {
	found := d.AllTxOutsFoundBlockCount

	ranges := make([]byte, 0, len(d.UnscannedMissedRanges)*blockRangeSize)
	for _, r := range d.UnscannedMissedRanges {
		ranges = binary.BigEndian.AppendUint64(ranges, r.Start)
		ranges = binary.BigEndian.AppendUint64(ranges, r.End)
	}

	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(foundBlockCountType, &found),
		tlv.MakePrimitiveRecord(missedRangesType, &ranges),
	)
	if err != nil {
		return err
	}

	return tlvStream.Encode(w)
}

func deserializeDiscoveryState(r io.Reader) (account.DiscoveryState, error) {
	var (
		d      account.DiscoveryState
		ranges []byte
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(
			foundBlockCountType, &d.AllTxOutsFoundBlockCount,
		),
		tlv.MakePrimitiveRecord(missedRangesType, &ranges),
	)
	if err != nil {
		return d, err
	}
	if err := tlvStream.Decode(r); err != nil {
		return d, err
	}

	if len(ranges)%blockRangeSize != 0 {
		return d, fmt.Errorf("invalid missed ranges length %d",
			len(ranges))
	}

	for len(ranges) > 0 {
		start := binary.BigEndian.Uint64(ranges[:8])
		end := binary.BigEndian.Uint64(ranges[8:blockRangeSize])
		ranges = ranges[blockRangeSize:]

		blockRange, err := ledger.NewBlockRange(start, end)
		if err != nil {
			return d, err
		}
		d.UnscannedMissedRanges = append(
			d.UnscannedMissedRanges, blockRange,
		)
	}

	return d, nil
}
