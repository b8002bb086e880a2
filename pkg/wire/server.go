package wire

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/internal/logging"
)

// Handler processes one decoded request and streams results back via
// emit; it returns the total count emitted (for the Complete payload)
// and an error if the request failed outright.
type Handler func(ctx context.Context, req Frame, emit func(BlobPayload) error) (int, error)

// Server is the server half of the remote protocol: it accepts control
// connections, performs the Startup handshake, and dispatches each
// subsequent request to handler on its own goroutine so long streaming
// reads don't block other clients, per spec §4.5 and §5's "read worker
// per list/retrieve call".
type Server struct {
	listener net.Listener
	handler  Handler

	mu      sync.Mutex
	stopped map[uint32]bool
	errCh   chan error
}

// NewServer wraps an already-bound listener with handler.
func NewServer(listener net.Listener, handler Handler) *Server {
	return &Server{listener: listener, handler: handler, stopped: make(map[uint32]bool), errCh: make(chan error, 1)}
}

// Start accepts connections until ctx is cancelled or the listener
// errors; errors are delivered on the returned channel, mirroring the
// Start(ctx)+error-channel convention used throughout this codebase's
// background services.
func (s *Server) Start(ctx context.Context) <-chan error {
	go func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				s.errCh <- ferr.Wrap(ferr.RemoteProtocolError, "accept remote connection", err)
				return
			}
			go s.serveConn(ctx, conn)
		}
	}()
	return s.errCh
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := logging.WithComponent("wire-server")

	startupFrame, err := ReadFrame(conn)
	if err != nil || startupFrame.Kind != KindStartup {
		log.Warn().Err(err).Msg("expected Startup frame")
		return
	}
	var startup Startup
	Unmarshal(startupFrame.Payload, &startup)

	reply := Startup{
		ClientSession:   startup.ClientSession,
		ServerSession:   startup.ClientSession + "-srv",
		ProtocolVersion: Version,
		AgreedConfig:    []string{"v1"},
	}
	if err := WriteFrame(conn, Frame{Kind: KindStartup, ClientID: startupFrame.ClientID, Payload: Marshal(reply)}); err != nil {
		return
	}

	for {
		req, err := ReadFrame(conn)
		if err != nil {
			return
		}
		switch req.Kind {
		case KindExit:
			return
		case KindStop:
			var stop StopPayload
			Unmarshal(req.Payload, &stop)
			s.mu.Lock()
			s.stopped[stop.RequestID] = true
			s.mu.Unlock()
		default:
			go s.handleRequest(ctx, conn, req)
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, conn net.Conn, req Frame) {
	var emitted int64
	emit := func(b BlobPayload) error {
		s.mu.Lock()
		stopped := s.stopped[req.RequestID]
		s.mu.Unlock()
		if stopped {
			return errStopped
		}
		atomic.AddInt64(&emitted, 1)
		return WriteFrame(conn, Frame{Kind: KindBlob, RequestID: req.RequestID, Payload: Marshal(b)})
	}

	count, err := s.handler(ctx, req, emit)
	s.mu.Lock()
	wasStopped := s.stopped[req.RequestID]
	delete(s.stopped, req.RequestID)
	s.mu.Unlock()

	if err != nil && err != errStopped {
		WriteFrame(conn, Frame{Kind: KindError, RequestID: req.RequestID, Payload: Marshal(ErrorPayload{Message: err.Error()})})
		return
	}
	if wasStopped {
		count = int(emitted)
	}
	WriteFrame(conn, Frame{Kind: KindComplete, RequestID: req.RequestID, Payload: Marshal(CompletePayload{Count: count})})
}

var errStopped = ferr.New(ferr.RemoteProtocolError, "request cancelled by client Stop")

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}
