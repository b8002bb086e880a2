package wire

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/internal/logging"
)

// ClientConnection is the client half of the remote protocol: a control
// connection (blocking request/response) and a data connection
// (streamed Blob/Complete/Error), established after a Startup
// handshake, per spec §4.5.
type ClientConnection struct {
	clientID uint32
	session  string

	control net.Conn
	data    net.Conn

	reqCounter uint32
	controlMu  sync.Mutex
}

// Dial connects to addr, performs the Startup handshake, and returns a
// ready ClientConnection. If the server's agreed configuration is
// empty (no overlapping protocol/location versions), the connection is
// closed and RemoteProtocolError is returned.
func Dial(addr string, clientID uint32, timeout time.Duration) (*ClientConnection, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, ferr.Wrap(ferr.RemoteProtocolError, "dial remote fdb server", err).With("addr", addr)
	}

	session := fmt.Sprintf("client-%d-%d", clientID, time.Now().UnixNano())
	startup := Startup{ClientSession: session, ProtocolVersion: Version, Capabilities: []string{"v1"}}
	if err := WriteFrame(conn, Frame{Kind: KindStartup, ClientID: clientID, Payload: Marshal(startup)}); err != nil {
		conn.Close()
		return nil, ferr.Wrap(ferr.RemoteProtocolError, "send startup", err)
	}

	reply, err := ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, ferr.Wrap(ferr.RemoteProtocolError, "read startup reply", err)
	}
	if reply.Kind == KindError {
		conn.Close()
		var e ErrorPayload
		Unmarshal(reply.Payload, &e)
		return nil, ferr.New(ferr.RemoteProtocolError, "server rejected startup").With("reason", e.Message)
	}
	var serverStartup Startup
	if err := Unmarshal(reply.Payload, &serverStartup); err != nil {
		conn.Close()
		return nil, ferr.Wrap(ferr.RemoteProtocolError, "decode startup reply", err)
	}
	if len(serverStartup.AgreedConfig) == 0 {
		conn.Close()
		return nil, ferr.New(ferr.RemoteProtocolError, "no agreed protocol configuration")
	}

	dataConn := conn
	if serverStartup.DataEndpoint != "" {
		dataConn, err = net.DialTimeout("tcp", serverStartup.DataEndpoint, timeout)
		if err != nil {
			conn.Close()
			return nil, ferr.Wrap(ferr.RemoteProtocolError, "dial data endpoint", err)
		}
	}

	logging.WithComponent("wire").Info().Str("session", serverStartup.ServerSession).Msg("remote fdb handshake complete")
	return &ClientConnection{clientID: clientID, session: serverStartup.ServerSession, control: conn, data: dataConn}, nil
}

// nextRequestID allocates a monotonically increasing request ID,
// scoped to this connection.
func (c *ClientConnection) nextRequestID() uint32 {
	return atomic.AddUint32(&c.reqCounter, 1)
}

// Call sends a blocking control request and waits for its single
// response frame.
func (c *ClientConnection) Call(kind Kind, payload []byte) (Frame, error) {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	reqID := c.nextRequestID()
	if err := WriteFrame(c.control, Frame{Kind: kind, ClientID: c.clientID, RequestID: reqID, Control: ControlMessage, Payload: payload}); err != nil {
		return Frame{}, ferr.Wrap(ferr.RemoteProtocolError, "send control request", err)
	}
	resp, err := ReadFrame(c.control)
	if err != nil {
		return Frame{}, ferr.Wrap(ferr.RemoteProtocolError, "read control response", err)
	}
	return resp, nil
}

// Stream sends a streaming request over the control connection and
// returns a channel of Blob frames terminated by Complete or Error. The
// caller may send Stop via StopStream to request early cancellation.
func (c *ClientConnection) Stream(kind Kind, payload []byte) (<-chan Frame, uint32, error) {
	c.controlMu.Lock()
	reqID := c.nextRequestID()
	err := WriteFrame(c.control, Frame{Kind: kind, ClientID: c.clientID, RequestID: reqID, Control: ControlMessage, Payload: payload})
	c.controlMu.Unlock()
	if err != nil {
		return nil, 0, ferr.Wrap(ferr.RemoteProtocolError, "send streaming request", err)
	}

	out := make(chan Frame, 32)
	go func() {
		defer close(out)
		for {
			frame, err := ReadFrame(c.data)
			if err != nil {
				out <- Frame{Kind: KindError, RequestID: reqID, Payload: Marshal(ErrorPayload{Message: err.Error()})}
				return
			}
			out <- frame
			if frame.Kind == KindComplete || frame.Kind == KindError {
				return
			}
		}
	}()
	return out, reqID, nil
}

// StopStream sends Stop{requestID}, asking the server to interrupt the
// worker serving it, drain queued blobs, and respond Complete.
func (c *ClientConnection) StopStream(requestID uint32) error {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()
	return WriteFrame(c.control, Frame{
		Kind:      KindStop,
		ClientID:  c.clientID,
		RequestID: requestID,
		Control:   ControlMessage,
		Payload:   Marshal(StopPayload{RequestID: requestID}),
	})
}

// Close sends Exit and closes both connections.
func (c *ClientConnection) Close() error {
	c.controlMu.Lock()
	WriteFrame(c.control, Frame{Kind: KindExit, ClientID: c.clientID, Control: ControlMessage})
	c.controlMu.Unlock()

	var first error
	if err := c.control.Close(); err != nil {
		first = err
	}
	if c.data != c.control {
		if err := c.data.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
