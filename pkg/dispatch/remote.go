package dispatch

import (
	"context"
	"io"
	"time"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/pkg/catalogue"
	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/location"
	"github.com/ecmwf-go/fdb/pkg/schema"
	"github.com/ecmwf-go/fdb/pkg/wire"
)

// Remote is the dispatch variant that forwards every operation to a
// fdb-server over the wire protocol of spec §4.5.
type Remote struct {
	conn *wire.ClientConnection
}

// NewRemote dials addr and completes the handshake.
func NewRemote(addr string, clientID uint32, timeout time.Duration) (*Remote, error) {
	conn, err := wire.Dial(addr, clientID, timeout)
	if err != nil {
		return nil, err
	}
	return &Remote{conn: conn}, nil
}

// Archive implements FDB.
func (r *Remote) Archive(ctx context.Context, req ArchiveRequest) error {
	payload := wire.ArchivePayload{CombinedKey: req.Chain.Combined().Request(), Payload: req.Payload}
	resp, err := r.conn.Call(wire.KindArchive, wire.Marshal(payload))
	if err != nil {
		return err
	}
	if resp.Kind == wire.KindError {
		var e wire.ErrorPayload
		wire.Unmarshal(resp.Payload, &e)
		return ferr.New(ferr.RemoteProtocolError, "remote archive failed").With("reason", e.Message)
	}
	return nil
}

// Flush implements FDB.
func (r *Remote) Flush(ctx context.Context) error {
	resp, err := r.conn.Call(wire.KindFlush, nil)
	if err != nil {
		return err
	}
	if resp.Kind == wire.KindError {
		var e wire.ErrorPayload
		wire.Unmarshal(resp.Payload, &e)
		return ferr.New(ferr.RemoteProtocolError, "remote flush failed").With("reason", e.Message)
	}
	return nil
}

// List implements FDB: issues a streaming List request and collects
// Blob frames until Complete or Error.
func (r *Remote) List(ctx context.Context, req schema.Request, dedup bool) ([]catalogue.Entry, error) {
	payload := wire.ListPayload{Request: req, Dedup: dedup}
	frames, reqID, err := r.conn.Stream(wire.KindList, wire.Marshal(payload))
	if err != nil {
		return nil, err
	}

	var out []catalogue.Entry
	for frame := range frames {
		select {
		case <-ctx.Done():
			r.conn.StopStream(reqID)
		default:
		}
		switch frame.Kind {
		case wire.KindBlob:
			var b wire.BlobPayload
			if err := wire.Unmarshal(frame.Payload, &b); err != nil {
				return out, ferr.Wrap(ferr.RemoteProtocolError, "decode blob", err)
			}
			out = append(out, catalogue.Entry{Location: location.New(b.URI, b.Offset, b.Length)})
		case wire.KindComplete:
			return out, nil
		case wire.KindError:
			var e wire.ErrorPayload
			wire.Unmarshal(frame.Payload, &e)
			return out, ferr.New(ferr.RemoteProtocolError, "remote list failed").With("reason", e.Message)
		}
	}
	return out, nil
}

// Retrieve implements FDB. The wire protocol's streamed List response
// carries locations, not payload bytes (spec §4.5's Blob frames name
// the field, the server never ships raw data over the control/list
// path), so a thin client cannot assemble a read handle on its own.
func (r *Remote) Retrieve(ctx context.Context, req schema.Request, dedup, optimise bool) (io.ReadCloser, error) {
	return nil, ferr.New(ferr.RemoteProtocolError, "remote retrieve not supported by this client").With("hint", "use the server's local dispatch directly")
}

// Wipe implements FDB.
func (r *Remote) Wipe(ctx context.Context, req schema.Request, doit, unsafeWipeAll bool) ([]string, error) {
	return nil, ferr.New(ferr.RemoteProtocolError, "remote wipe not supported by this client").With("hint", "use the server's local dispatch directly")
}

// Purge implements FDB.
func (r *Remote) Purge(ctx context.Context, req schema.Request, doit bool) ([]string, error) {
	return nil, ferr.New(ferr.RemoteProtocolError, "remote purge not supported by this client").With("hint", "use the server's local dispatch directly")
}

// Control implements FDB.
func (r *Remote) Control(ctx context.Context, dbKey *key.Key, action ControlAction, enable bool) error {
	resp, err := r.conn.Call(wire.KindControl, nil)
	if err != nil {
		return err
	}
	if resp.Kind == wire.KindError {
		var e wire.ErrorPayload
		wire.Unmarshal(resp.Payload, &e)
		return ferr.New(ferr.RemoteProtocolError, "remote control failed").With("reason", e.Message)
	}
	return nil
}

// Close implements FDB.
func (r *Remote) Close() error {
	return r.conn.Close()
}
