package catalogue

import (
	"fmt"
	"os"
	"syscall"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/internal/logging"
)

// TOCWriter appends records to a single database's master TOC file,
// serialized by an exclusive advisory lock on a "toc.lock" sibling, per
// spec §4.2: "A single writer per database at a time acquires an
// exclusive advisory lock on a toc.lock sibling".
type TOCWriter struct {
	path     string
	lockPath string

	file *os.File
	lock *os.File
}

// OpenTOCWriter opens (creating if necessary) the TOC at path for
// append, and acquires its companion lock file.
func OpenTOCWriter(path string) (*TOCWriter, error) {
	lockPath := path + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "open toc lock", err).With("path", lockPath)
	}
	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX); err != nil {
		lock.Close()
		return nil, ferr.Wrap(ferr.LockConflict, "acquire toc lock", err).With("path", lockPath)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
		lock.Close()
		return nil, ferr.Wrap(ferr.StoreIOError, "open toc file", err).With("path", path)
	}

	return &TOCWriter{path: path, lockPath: lockPath, file: f, lock: lock}, nil
}

// Append writes one whole record in a single syscall and fsyncs,
// matching the "atomic append" discipline required for lock-free
// concurrent readers.
func (w *TOCWriter) Append(rec Record) error {
	buf := EncodeRecord(rec)
	n, err := w.file.Write(buf)
	if err != nil {
		return ferr.Wrap(ferr.StoreIOError, "append toc record", err).With("path", w.path)
	}
	if n != len(buf) {
		return ferr.New(ferr.StoreIOError, "short toc write").With("path", w.path)
	}
	if err := w.file.Sync(); err != nil {
		return ferr.Wrap(ferr.StoreIOError, "fsync toc", err).With("path", w.path)
	}
	logging.WithComponent("catalogue").Debug().Str("kind", rec.Kind.String()).Str("path", w.path).Msg("appended toc record")
	return nil
}

// AppendInit appends the database header record, which must be the
// first record in a fresh TOC.
func (w *TOCWriter) AppendInit(p InitPayload) error {
	return w.Append(Record{Kind: KindInit, Payload: encodeInit(p)})
}

// AppendIndex declares a new index entry.
func (w *TOCWriter) AppendIndex(p IndexPayload) error {
	return w.Append(Record{Kind: KindIndex, Payload: encodeIndex(p)})
}

// AppendClear marks a previously declared index as masked.
func (w *TOCWriter) AppendClear(p ClearPayload) error {
	return w.Append(Record{Kind: KindClear, Payload: encodeClear(p)})
}

// AppendSubToc records the inclusion of a child TOC written by a
// concurrent writer.
func (w *TOCWriter) AppendSubToc(p SubTocPayload) error {
	return w.Append(Record{Kind: KindSubToc, Payload: encodeSubToc(p)})
}

// AppendWipe writes the terminal Wipe marker. No further records may
// legally follow; a reader encountering one is CatalogueCorrupt.
func (w *TOCWriter) AppendWipe() error {
	return w.Append(Record{Kind: KindWipe})
}

// Close releases the writer's file handles and lock.
func (w *TOCWriter) Close() error {
	var errs []error
	if err := w.file.Close(); err != nil {
		errs = append(errs, err)
	}
	syscall.Flock(int(w.lock.Fd()), syscall.LOCK_UN)
	if err := w.lock.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalogue: close toc writer: %v", errs)
	}
	return nil
}
