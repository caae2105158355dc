package protocol

import (
	"context"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("protocol")

// --------------------------------------------------------------------------
// Session State
// --------------------------------------------------------------------------

// State is the state of a session
type State int32

const (
	StateAwaitHeader State = iota // waiting for the opcode of the next request
	StateDispatch                 // validating the opcode
	StateAwaitBody                // reading store name, key and the opcode specific body
	StateRespond                  // executing the request and writing the response
	StateClosed                   // end of stream, framing or I/O error
)

func (s State) String() string {
	switch s {
	case StateAwaitHeader:
		return "await-header"
	case StateDispatch:
		return "dispatch"
	case StateAwaitBody:
		return "await-body"
	case StateRespond:
		return "respond"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// StoreResolver resolves a store name to a store. Unknown names must return an
// error matching store.ErrNoSuchStore.
type StoreResolver interface {
	Lookup(name string) (store.IStorageEngine, error)
}

// SessionOptions configures a session
type SessionOptions struct {
	MaxRequestBytes int           // bound of every length field (0 = DefaultMaxRequestBytes)
	IdleTimeout     time.Duration // maximal wait for the next request (0 = no timeout)
	Metrics         *Metrics      // may be nil
}

// request is a fully read request
type request struct {
	op    OpCode
	store string
	key   []byte
	body  []byte // PUT: clock + value, DELETE: clock
}

// Session runs the request/response loop of one connection.
// Requests are handled strictly sequentially.
type Session struct {
	conn     net.Conn
	resolver StoreResolver
	opts     SessionOptions
	r        *Reader
	w        *Writer
	state    atomic.Int32
}

// NewSession creates a session for conn
func NewSession(conn net.Conn, resolver StoreResolver, opts SessionOptions) *Session {
	return &Session{
		conn:     conn,
		resolver: resolver,
		opts:     opts,
		r:        NewReader(conn, opts.MaxRequestBytes),
		w:        NewWriter(conn),
	}
}

// State returns the current state of the session
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Serve handles requests until the stream ends, ctx is cancelled or a framing or
// I/O error occurs. A clean end of stream and cancellation return nil.
// Serve does not close the connection.
func (s *Session) Serve(ctx context.Context) error {
	defer s.setState(StateClosed)

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateAwaitHeader)
		if s.opts.IdleTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout)); err != nil {
				return errors.Wrap(err, "set read deadline")
			}
		}
		b, err := s.r.Uint8()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// deadlines set by a shutdown look like timeouts
			if ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return errors.Wrap(err, "read opcode")
		}

		s.setState(StateDispatch)
		op := OpCode(b)
		if !op.Valid() {
			s.opts.Metrics.framingFailure()
			return errors.Wrapf(ErrProtocolFraming, "unknown opcode %d", b)
		}

		s.setState(StateAwaitBody)
		req, err := s.readRequest(op)
		if err != nil {
			s.opts.Metrics.framingFailure()
			return err
		}

		s.setState(StateRespond)
		if err := s.handle(req); err != nil {
			return errors.Wrapf(err, "write %s response", op)
		}
	}
}

// readRequest reads the rest of the header and the complete body of the opcode.
// The body is read before the store is looked up so that the stream stays aligned
// even if the store does not exist.
func (s *Session) readRequest(op OpCode) (request, error) {
	req := request{op: op}
	var err error
	if req.store, err = s.r.UTF(); err != nil {
		return req, errors.Wrap(err, "read store name")
	}
	if req.key, err = s.r.LongBytes(); err != nil {
		return req, errors.Wrap(err, "read key")
	}
	switch op {
	case OpPut:
		req.body, err = s.r.LongBytes()
	case OpDelete:
		req.body, err = s.r.ShortBytes()
	}
	if err != nil {
		return req, errors.Wrapf(err, "read %s body", op)
	}
	return req, nil
}

// handle executes a request and writes its response. Only write errors are returned,
// store errors are sent to the client. The request is counted before the response is
// flushed, so a client that read its response sees it in the metrics.
func (s *Session) handle(req request) error {
	start := time.Now()
	var (
		versions []versioning.Versioned
		deleted  bool
	)
	err := s.execute(req, &versions, &deleted)
	s.opts.Metrics.observe(req.op, store.CodeOf(err), start)

	if err != nil {
		switch store.CodeOf(err) {
		case store.RetCStorageAccess, store.RetCInternalError:
			log.Errorf("%s on store %s failed: %v", req.op, req.store, err)
		default:
			log.Debugf("%s on store %s rejected: %v", req.op, req.store, err)
		}
		return s.w.WriteError(err)
	}

	switch req.op {
	case OpGet:
		return s.w.WriteGetResponse(versions)
	case OpPut:
		return s.w.WritePutResponse()
	default:
		return s.w.WriteDeleteResponse(deleted)
	}
}

// execute runs the request against its store
func (s *Session) execute(req request, versions *[]versioning.Versioned, deleted *bool) error {
	engine, err := s.resolver.Lookup(req.store)
	if err != nil {
		return err
	}

	switch req.op {
	case OpGet:
		*versions, err = engine.Get(req.key)
		return err

	case OpPut:
		value, err := versioning.DecodeVersioned(req.body)
		if err != nil {
			return err
		}
		return engine.Put(req.key, value)

	case OpDelete:
		clock, err := versioning.DecodeVectorClock(req.body)
		if err != nil {
			return err
		}
		if clock.SizeInBytes() != len(req.body) {
			return errors.Wrapf(versioning.ErrMalformedVersion, "%d trailing bytes after clock", len(req.body)-clock.SizeInBytes())
		}
		*deleted, err = engine.Delete(req.key, clock)
		return err

	default:
		return errors.Wrapf(ErrProtocolFraming, "unknown opcode %d", req.op)
	}
}
