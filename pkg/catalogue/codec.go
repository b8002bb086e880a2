package catalogue

import (
	"encoding/binary"
	"fmt"
)

// The payload codecs below are deliberately simple length-prefixed
// encodings (not a general serialization library): TOC records are
// small, fixed-shape, and never evolve independently of this package.

func putString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, fmt.Errorf("catalogue: truncated string length")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return "", nil, fmt.Errorf("catalogue: truncated string body")
	}
	return string(buf[:n]), buf[n:], nil
}

func putBytes(buf []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, b...)
	return buf
}

func getBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("catalogue: truncated bytes length")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, fmt.Errorf("catalogue: truncated bytes body")
	}
	return buf[:n], buf[n:], nil
}

func putU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func getU64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("catalogue: truncated u64")
	}
	return binary.LittleEndian.Uint64(buf[:8]), buf[8:], nil
}

func putU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func getU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, fmt.Errorf("catalogue: truncated u32")
	}
	return binary.LittleEndian.Uint32(buf[:4]), buf[4:], nil
}

func encodeInit(p InitPayload) []byte {
	var buf []byte
	buf = putString(buf, p.DBKey)
	buf = putU32(buf, p.Version)
	buf = putBytes(buf, p.SchemaSnapshot)
	return buf
}

// DecodeIndexPayload decodes the payload of a KindIndex record, for
// callers outside this package (pkg/lifecycle's purge) that need to walk
// raw TOC history.
func DecodeIndexPayload(rec Record) (IndexPayload, error) {
	return decodeIndex(rec.Payload)
}

// DecodeClearPayload decodes the payload of a KindClear record.
func DecodeClearPayload(rec Record) (ClearPayload, error) {
	return decodeClear(rec.Payload)
}

func decodeInit(buf []byte) (InitPayload, error) {
	var p InitPayload
	var err error
	p.DBKey, buf, err = getString(buf)
	if err != nil {
		return p, err
	}
	p.Version, buf, err = getU32(buf)
	if err != nil {
		return p, err
	}
	p.SchemaSnapshot, _, err = getBytes(buf)
	return p, err
}

func encodeIndex(p IndexPayload) []byte {
	var buf []byte
	buf = putString(buf, p.IndexKey)
	buf = putU64(buf, p.RegistryHash)
	buf = putString(buf, p.IndexFileRef)
	return buf
}

func decodeIndex(buf []byte) (IndexPayload, error) {
	var p IndexPayload
	var err error
	p.IndexKey, buf, err = getString(buf)
	if err != nil {
		return p, err
	}
	p.RegistryHash, buf, err = getU64(buf)
	if err != nil {
		return p, err
	}
	p.IndexFileRef, _, err = getString(buf)
	return p, err
}

func encodeClear(p ClearPayload) []byte {
	return putString(nil, p.IndexFileRef)
}

func decodeClear(buf []byte) (ClearPayload, error) {
	ref, _, err := getString(buf)
	return ClearPayload{IndexFileRef: ref}, err
}

func encodeSubToc(p SubTocPayload) []byte {
	return putString(nil, p.Path)
}

func decodeSubToc(buf []byte) (SubTocPayload, error) {
	path, _, err := getString(buf)
	return SubTocPayload{Path: path}, err
}
