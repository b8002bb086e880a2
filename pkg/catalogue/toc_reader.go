package catalogue

import (
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"

	"github.com/ecmwf-go/fdb/internal/ferr"
)

// DecodedRecord pairs a Record with the path of the TOC file it was read
// from, so callers can resolve relative SubToc/index-file references.
type DecodedRecord struct {
	Record
	SourcePath string
}

// ReadTOC scans path sequentially, following any SubToc records it
// encounters (child TOCs for concurrent writers, included transparently
// per spec §4.2), and returns every record in the order a reader should
// observe them: this master TOC's records with each SubToc's own records
// spliced in at the point of inclusion.
//
// A truncated final record (header or payload shorter than its declared
// length) is silently discarded; the catalogue remains readable up to
// that point. A record appearing after a Wipe is a protocol violation.
func ReadTOC(path string) ([]DecodedRecord, error) {
	seen := make(map[string]bool)
	return readTOC(path, seen)
}

func readTOC(path string, seen map[string]bool) ([]DecodedRecord, error) {
	if seen[path] {
		return nil, nil
	}
	seen[path] = true

	records, err := scanFile(path)
	if err != nil {
		return nil, err
	}

	var out []DecodedRecord
	wiped := false
	for _, rec := range records {
		if wiped {
			return nil, ferr.New(ferr.CatalogueCorrupt, "record follows Wipe").With("path", path)
		}
		out = append(out, DecodedRecord{Record: rec, SourcePath: path})
		switch rec.Kind {
		case KindWipe:
			wiped = true
		case KindSubToc:
			sub, err := decodeSubToc(rec.Payload)
			if err != nil {
				return nil, ferr.Wrap(ferr.CatalogueCorrupt, "decode subtoc", err).With("path", path)
			}
			childPath := sub.Path
			if !filepath.IsAbs(childPath) {
				childPath = filepath.Join(filepath.Dir(path), childPath)
			}
			childRecords, err := readTOC(childPath, seen)
			if err != nil {
				if os.IsNotExist(errOrStat(childPath)) {
					// Dangling SubToc during a plain read: hard error,
					// per the read-path resolution of the open question
					// in DESIGN.md.
					return nil, ferr.New(ferr.CatalogueCorrupt, "subtoc path does not exist").With("path", childPath)
				}
				return nil, err
			}
			out = append(out, childRecords...)
		}
	}
	return out, nil
}

func errOrStat(path string) error {
	_, err := os.Stat(path)
	return err
}

// scanFile reads every well-formed record from path using an mmap, and
// discards a trailing short record rather than failing the whole scan.
func scanFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "open toc for read", err).With("path", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "stat toc", err).With("path", path)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "mmap toc", err).With("path", path)
	}
	defer m.Unmap()

	var records []Record
	buf := []byte(m)
	pos := 0
	for pos < len(buf) {
		remaining := buf[pos:]
		if len(remaining) < headerSize {
			break // truncated final record: discard, catalogue still readable
		}
		kind, length, err := DecodeHeader(remaining)
		if err != nil {
			return nil, ferr.Wrap(ferr.CatalogueCorrupt, "decode toc record header", err).With("path", path)
		}
		end := headerSize + int(length)
		if end > len(remaining) {
			break // truncated payload: discard
		}
		payload := make([]byte, length)
		copy(payload, remaining[headerSize:end])
		records = append(records, Record{Kind: kind, Payload: payload})
		pos += end
	}
	return records, nil
}
