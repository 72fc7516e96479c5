package history

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrCorruptRecord is returned when a TFRecord checksum does not match
var ErrCorruptRecord = errors.New("corrupt event record")

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// maxRecordLength bounds the records held in memory. Scalar events are a few
// hundred bytes; larger records (graphs, images) are skipped unread.
const maxRecordLength = 16 << 20

// Field numbers of the tensorflow.Event, Summary, Summary.Value and TensorProto messages
const (
	eventWallTime    protowire.Number = 1
	eventStep        protowire.Number = 2
	eventFileVersion protowire.Number = 3
	eventSummary     protowire.Number = 5

	summaryValue protowire.Number = 1

	valueTag         protowire.Number = 1
	valueSimpleValue protowire.Number = 2
	valueTensor      protowire.Number = 8

	tensorDtype   protowire.Number = 1
	tensorContent protowire.Number = 4
	tensorFloat   protowire.Number = 5
	tensorDouble  protowire.Number = 6

	dtFloat  = 1
	dtDouble = 2
)

// Event is a decoded TensorBoard event with its scalar summaries
type Event struct {
	WallTime    float64
	Step        int64
	FileVersion string
	Scalars     map[string]float64
}

// maskedCRC32 is the TFRecord checksum: CRC32C rotated right by 15 bits plus a constant
func maskedCRC32(data []byte) uint32 {
	return maskCRC(crc32.Checksum(data, crcTable))
}

func maskCRC(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// ReadEvents decodes every record of a TensorBoard event file.
// Record layout:
//   - uint64: payload length (little-endian)
//   - uint32: masked CRC32C of the length
//   - bytes:  protobuf-encoded Event
//   - uint32: masked CRC32C of the payload
func ReadEvents(r io.Reader) ([]Event, error) {
	br := bufio.NewReader(r)
	var events []Event

	for i := 0; ; i++ {
		payload, err := readRecord(br)
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("record %d: %w", i, err)
		}
		if payload == nil {
			continue
		}

		ev, err := decodeEvent(payload)
		if err != nil {
			return events, fmt.Errorf("record %d: failed to decode event: %w", i, err)
		}
		events = append(events, ev)
	}
}

func readRecord(r io.Reader) ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read record header: %w", err)
	}

	length := binary.LittleEndian.Uint64(header[:8])
	if maskedCRC32(header[:8]) != binary.LittleEndian.Uint32(header[8:]) {
		return nil, fmt.Errorf("%w: length checksum mismatch", ErrCorruptRecord)
	}
	if length > maxRecordLength {
		return nil, skipRecord(r, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read record payload: %w", err)
	}
	if err := checkFooter(r, maskedCRC32(payload)); err != nil {
		return nil, err
	}
	return payload, nil
}

// skipRecord reads past an oversized payload, verifying its checksum without buffering it
func skipRecord(r io.Reader, length uint64) error {
	if length > math.MaxInt64 {
		return fmt.Errorf("%w: record length %d too large", ErrCorruptRecord, length)
	}
	h := crc32.New(crcTable)
	if _, err := io.CopyN(h, r, int64(length)); err != nil {
		return fmt.Errorf("failed to read record payload: %w", err)
	}
	return checkFooter(r, maskCRC(h.Sum32()))
}

func checkFooter(r io.Reader, want uint32) error {
	var footer [4]byte
	if _, err := io.ReadFull(r, footer[:]); err != nil {
		return fmt.Errorf("failed to read record checksum: %w", err)
	}
	if want != binary.LittleEndian.Uint32(footer[:]) {
		return fmt.Errorf("%w: payload checksum mismatch", ErrCorruptRecord)
	}
	return nil
}

func decodeEvent(b []byte) (Event, error) {
	ev := Event{Scalars: make(map[string]float64)}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ev, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == eventWallTime && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return ev, protowire.ParseError(n)
			}
			ev.WallTime = math.Float64frombits(v)
			b = b[n:]

		case num == eventStep && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ev, protowire.ParseError(n)
			}
			ev.Step = int64(v)
			b = b[n:]

		case num == eventFileVersion && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ev, protowire.ParseError(n)
			}
			ev.FileVersion = string(v)
			b = b[n:]

		case num == eventSummary && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ev, protowire.ParseError(n)
			}
			if err := decodeSummary(v, ev.Scalars); err != nil {
				return ev, fmt.Errorf("summary: %w", err)
			}
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ev, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return ev, nil
}

func decodeSummary(b []byte, scalars map[string]float64) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if num == summaryValue && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			tag, value, ok, err := decodeValue(v)
			if err != nil {
				return err
			}
			if ok {
				scalars[tag] = value
			}
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

// decodeValue extracts a scalar from a Summary.Value. TF1 writers use
// simple_value; TF2 writers store a rank-0 float tensor.
func decodeValue(b []byte) (tag string, value float64, ok bool, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", 0, false, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == valueTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", 0, false, protowire.ParseError(n)
			}
			tag = string(v)
			b = b[n:]

		case num == valueSimpleValue && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return "", 0, false, protowire.ParseError(n)
			}
			value, ok = float64(math.Float32frombits(v)), true
			b = b[n:]

		case num == valueTensor && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", 0, false, protowire.ParseError(n)
			}
			if tv, tok, terr := decodeScalarTensor(v); terr != nil {
				return "", 0, false, terr
			} else if tok {
				value, ok = tv, true
			}
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", 0, false, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return tag, value, ok, nil
}

func decodeScalarTensor(b []byte) (float64, bool, error) {
	var (
		dtype   uint64
		content []byte
		value   float64
		found   bool
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, false, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == tensorDtype && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, false, protowire.ParseError(n)
			}
			dtype = v
			b = b[n:]

		case num == tensorContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, false, protowire.ParseError(n)
			}
			content = v
			b = b[n:]

		case num == tensorFloat && typ == protowire.BytesType:
			// packed repeated float
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, false, protowire.ParseError(n)
			}
			if len(v) >= 4 {
				value, found = float64(math.Float32frombits(binary.LittleEndian.Uint32(v))), true
			}
			b = b[n:]

		case num == tensorFloat && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return 0, false, protowire.ParseError(n)
			}
			value, found = float64(math.Float32frombits(v)), true
			b = b[n:]

		case num == tensorDouble && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, false, protowire.ParseError(n)
			}
			if len(v) >= 8 {
				value, found = math.Float64frombits(binary.LittleEndian.Uint64(v)), true
			}
			b = b[n:]

		case num == tensorDouble && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, false, protowire.ParseError(n)
			}
			value, found = math.Float64frombits(v), true
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, false, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}

	if found {
		return value, true, nil
	}
	switch {
	case dtype == dtFloat && len(content) >= 4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(content))), true, nil
	case dtype == dtDouble && len(content) >= 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(content)), true, nil
	}
	return 0, false, nil
}

// WriteEvent appends one TFRecord holding e to w. Scalars are written as
// simple_value summaries in tag order.
func WriteEvent(w io.Writer, e Event) error {
	payload := encodeEvent(e)

	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC32(header[:8]))

	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC32(payload))

	for _, part := range [][]byte{header[:], payload, footer[:]} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("failed to write event record: %w", err)
		}
	}
	return nil
}

func encodeEvent(e Event) []byte {
	var b []byte
	b = protowire.AppendTag(b, eventWallTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(e.WallTime))
	b = protowire.AppendTag(b, eventStep, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Step))

	if e.FileVersion != "" {
		b = protowire.AppendTag(b, eventFileVersion, protowire.BytesType)
		b = protowire.AppendString(b, e.FileVersion)
	}

	if len(e.Scalars) > 0 {
		tags := make([]string, 0, len(e.Scalars))
		for tag := range e.Scalars {
			tags = append(tags, tag)
		}
		sort.Strings(tags)

		var summary []byte
		for _, tag := range tags {
			var value []byte
			value = protowire.AppendTag(value, valueTag, protowire.BytesType)
			value = protowire.AppendString(value, tag)
			value = protowire.AppendTag(value, valueSimpleValue, protowire.Fixed32Type)
			value = protowire.AppendFixed32(value, math.Float32bits(float32(e.Scalars[tag])))

			summary = protowire.AppendTag(summary, summaryValue, protowire.BytesType)
			summary = protowire.AppendBytes(summary, value)
		}

		b = protowire.AppendTag(b, eventSummary, protowire.BytesType)
		b = protowire.AppendBytes(b, summary)
	}
	return b
}
