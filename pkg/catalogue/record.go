// Package catalogue implements the TOC (table of contents): an
// append-only journal of records plus per-index hash-table files and
// axis summaries, as described in spec.md §4.2.
package catalogue

import (
	"encoding/binary"
	"fmt"
)

// Magic is the fixed TOC record header magic number (spec §6).
const Magic uint32 = 0xFDB5

// RecordVersion is the on-disk record format version.
const RecordVersion uint8 = 1

// Kind enumerates the TOC record kinds.
type Kind uint8

const (
	KindInit Kind = iota + 1
	KindIndex
	KindClear
	KindSubToc
	KindWipe
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "Init"
	case KindIndex:
		return "Index"
	case KindClear:
		return "Clear"
	case KindSubToc:
		return "SubToc"
	case KindWipe:
		return "Wipe"
	default:
		return "Unknown"
	}
}

// headerSize is the encoded size of {magic:4, version:1, kind:1, length:4}.
const headerSize = 4 + 1 + 1 + 4

// Record is one framed TOC entry: a fixed header plus a kind-specific
// payload. Payload encoding is left to each record body type below.
type Record struct {
	Kind    Kind
	Payload []byte
}

// EncodeRecord frames rec as {magic, version, kind, length, payload},
// little-endian, matching "TOC record header: magic=0xFDB5, version:u8,
// kind:u8, length:u32 (little-endian)".
func EncodeRecord(rec Record) []byte {
	buf := make([]byte, headerSize+len(rec.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	buf[4] = RecordVersion
	buf[5] = byte(rec.Kind)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(len(rec.Payload)))
	copy(buf[headerSize:], rec.Payload)
	return buf
}

// DecodeHeader parses the fixed header from buf, returning the kind, the
// payload length, and an error if the magic doesn't match.
func DecodeHeader(buf []byte) (kind Kind, length uint32, err error) {
	if len(buf) < headerSize {
		return 0, 0, fmt.Errorf("catalogue: short header (%d bytes)", len(buf))
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return 0, 0, fmt.Errorf("catalogue: bad magic %#x", magic)
	}
	kind = Kind(buf[5])
	length = binary.LittleEndian.Uint32(buf[6:10])
	return kind, length, nil
}

// InitPayload is the body of a KindInit record: the database header.
type InitPayload struct {
	SchemaSnapshot []byte
	DBKey          string
	Version        uint32
}

// IndexPayload is the body of a KindIndex record.
type IndexPayload struct {
	IndexKey     string
	RegistryHash uint64
	IndexFileRef string
}

// ClearPayload is the body of a KindClear record: marks a prior Index
// record (identified by its file ref) as masked.
type ClearPayload struct {
	IndexFileRef string
}

// SubTocPayload is the body of a KindSubToc record: inclusion of a child
// TOC file for parallel writers.
type SubTocPayload struct {
	Path string
}
