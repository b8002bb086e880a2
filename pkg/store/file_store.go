package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/google/uuid"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/internal/logging"
	"github.com/ecmwf-go/fdb/pkg/location"
)

// FileStore is the POSIX directory/file backend. Under Packed, each
// flush batch goes to one data file named "<stamp>.<host>.<pid>.data"
// per spec §6's on-disk layout; under Unpacked, each field gets its own
// "<indexKey>.<uuid>.data" file. Reads are served through mmap-go for
// sequential access without per-read syscalls.
type FileStore struct {
	root   string
	policy PackingPolicy

	mu      sync.Mutex
	pending []pendingWrite
	current *os.File
	writer  *os.File
	written int64

	mmapMu sync.Mutex
	mapped map[string]mmap.MMap
}

type pendingWrite struct {
	payload []byte
	offset  int64
}

// NewFileStore opens (creating if necessary) a FileStore rooted at dir.
func NewFileStore(dir string, policy PackingPolicy) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "create store root", err).With("path", dir)
	}
	return &FileStore{root: dir, policy: policy, mapped: make(map[string]mmap.MMap)}, nil
}

// Archive implements Store. Under Packed policy, payload is appended to
// the current batch file and offset/length are recorded; under
// Unpacked, each payload gets its own data file.
func (s *FileStore) Archive(ctx context.Context, indexKey string, payload []byte) (location.FieldLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.policy == Unpacked {
		name := fmt.Sprintf("%s.%s.data", indexKey, uuid.NewString())
		path := filepath.Join(s.root, name)
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			return location.FieldLocation{}, ferr.Wrap(ferr.StoreIOError, "write data file", err).With("path", path)
		}
		return location.New("file://"+path, 0, int64(len(payload))), nil
	}

	if s.writer == nil {
		if err := s.openBatchLocked(); err != nil {
			return location.FieldLocation{}, err
		}
	}
	offset := s.written
	s.pending = append(s.pending, pendingWrite{payload: payload, offset: offset})
	s.written += int64(len(payload))
	return location.New("file://"+s.writer.Name(), offset, int64(len(payload))), nil
}

func (s *FileStore) openBatchLocked() error {
	stamp := time.Now().UTC().Format("20060102.150405.000000")
	host, _ := os.Hostname()
	name := fmt.Sprintf("%s.%s.%d.data", stamp, host, os.Getpid())
	path := filepath.Join(s.root, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return ferr.Wrap(ferr.StoreIOError, "open batch data file", err).With("path", path)
	}
	s.writer = f
	s.written = 0
	return nil
}

// Flush implements Store: writes every pending payload to the current
// batch file in order and fsyncs, making them durable before the
// catalogue may publish the corresponding index record.
func (s *FileStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil || len(s.pending) == 0 {
		return nil
	}
	for _, pw := range s.pending {
		if _, err := s.writer.Write(pw.payload); err != nil {
			return ferr.Wrap(ferr.StoreIOError, "write pending payload", err).With("path", s.writer.Name())
		}
	}
	if err := s.writer.Sync(); err != nil {
		return ferr.Wrap(ferr.StoreIOError, "fsync data file", err).With("path", s.writer.Name())
	}
	logging.WithComponent("store").Debug().Int("count", len(s.pending)).Str("file", s.writer.Name()).Msg("flushed data file")
	s.pending = nil
	s.writer.Close()
	s.writer = nil
	return nil
}

// Retrieve opens a read handle over loc's byte range via an mmap of the
// backing file, reused across calls for the same file.
func (s *FileStore) Retrieve(ctx context.Context, loc location.FieldLocation) (ReadStream, error) {
	path, err := filePathFromURI(loc.URI)
	if err != nil {
		return nil, err
	}
	m, err := s.mapFile(path)
	if err != nil {
		return nil, err
	}
	end := loc.Offset + loc.Length
	if loc.Offset < 0 || end > int64(len(m)) {
		return nil, ferr.New(ferr.StoreIOError, "byte range out of bounds").With("path", path)
	}
	return &mmapReadStream{data: m[loc.Offset:end]}, nil
}

func (s *FileStore) mapFile(path string) (mmap.MMap, error) {
	s.mmapMu.Lock()
	defer s.mmapMu.Unlock()
	if m, ok := s.mapped[path]; ok {
		return m, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "open data file for read", err).With("path", path)
	}
	defer f.Close()
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "mmap data file", err).With("path", path)
	}
	s.mapped[path] = m
	return m, nil
}

// Remove deletes the file identified by uri (doit=true) or reports its
// size without deleting (doit=false).
func (s *FileStore) Remove(ctx context.Context, uri string, doit bool) (int64, error) {
	path, err := filePathFromURI(uri)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, ferr.Wrap(ferr.StoreIOError, "stat store unit", err).With("path", path)
	}
	size := info.Size()
	if !doit {
		return size, nil
	}
	s.mmapMu.Lock()
	if m, ok := s.mapped[path]; ok {
		m.Unmap()
		delete(s.mapped, path)
	}
	s.mmapMu.Unlock()
	if err := os.Remove(path); err != nil {
		return 0, ferr.Wrap(ferr.StoreIOError, "remove store unit", err).With("path", path)
	}
	return size, nil
}

// StoreUnitURIs enumerates every *.data file under root.
func (s *FileStore) StoreUnitURIs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "list store root", err).With("path", s.root)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".data" {
			continue
		}
		out = append(out, "file://"+filepath.Join(s.root, e.Name()))
	}
	return out, nil
}

// Close unmaps every cached mmap and closes any open batch writer.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.writer != nil {
		s.writer.Close()
		s.writer = nil
	}
	s.mu.Unlock()

	s.mmapMu.Lock()
	defer s.mmapMu.Unlock()
	for path, m := range s.mapped {
		m.Unmap()
		delete(s.mapped, path)
	}
	return nil
}

func filePathFromURI(uri string) (string, error) {
	const prefix = "file://"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", ferr.New(ferr.StoreIOError, "not a file:// uri").With("uri", uri)
	}
	return uri[len(prefix):], nil
}

type mmapReadStream struct {
	data []byte
	pos  int
}

func (r *mmapReadStream) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *mmapReadStream) Close() error { return nil }
