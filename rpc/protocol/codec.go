package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Opcodes and Errors
// --------------------------------------------------------------------------

// OpCode is the one byte tag of a request
type OpCode byte

const (
	OpGet    OpCode = 1
	OpPut    OpCode = 2
	OpDelete OpCode = 3
)

func (o OpCode) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Valid reports whether o is a known opcode
func (o OpCode) Valid() bool {
	return o == OpGet || o == OpPut || o == OpDelete
}

// ErrProtocolFraming is returned for unknown opcodes and truncated or invalid frames.
// It is fatal to the connection.
var ErrProtocolFraming = errors.New("protocol framing error")

// ErrRemote marks errors decoded from an error response. The stream is still aligned after them.
var ErrRemote = errors.New("remote error")

// DefaultMaxRequestBytes is the default bound of every length field
const DefaultMaxRequestBytes = 16 << 20

// framingError marks err as a framing error
func framingError(err error, format string, args ...interface{}) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrProtocolFraming)
}

// --------------------------------------------------------------------------
// Reader
// --------------------------------------------------------------------------

// Reader reads the primitives of the wire format (all integers big-endian)
type Reader struct {
	r   *bufio.Reader
	max uint32
	buf [4]byte
}

// NewReader creates a reader that rejects length fields larger than maxBytes
func NewReader(r io.Reader, maxBytes int) *Reader {
	if maxBytes <= 0 || maxBytes > math.MaxUint32 {
		maxBytes = DefaultMaxRequestBytes
	}
	return &Reader{r: bufio.NewReader(r), max: uint32(maxBytes)}
}

// Uint8 reads one byte. A clean end of stream is returned as io.EOF.
func (r *Reader) Uint8() (uint8, error) {
	return r.r.ReadByte()
}

// Uint16 reads a big-endian uint16
func (r *Reader) Uint16() (uint16, error) {
	if _, err := io.ReadFull(r.r, r.buf[:2]); err != nil {
		return 0, framingError(err, "read uint16")
	}
	return binary.BigEndian.Uint16(r.buf[:2]), nil
}

// Uint32 reads a big-endian uint32
func (r *Reader) Uint32() (uint32, error) {
	if _, err := io.ReadFull(r.r, r.buf[:4]); err != nil {
		return 0, framingError(err, "read uint32")
	}
	return binary.BigEndian.Uint32(r.buf[:4]), nil
}

// Bytes reads exactly n bytes into a new slice
func (r *Reader) Bytes(n uint32) ([]byte, error) {
	if n > r.max {
		return nil, errors.Wrapf(ErrProtocolFraming, "length %d exceeds limit %d", n, r.max)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, framingError(err, "read %d bytes", n)
	}
	return b, nil
}

// ShortBytes reads a uint16 length followed by that many bytes
func (r *Reader) ShortBytes() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return r.Bytes(uint32(n))
}

// LongBytes reads a uint32 length followed by that many bytes
func (r *Reader) LongBytes() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	return r.Bytes(n)
}

// UTF reads a uint16 length prefixed UTF-8 string
func (r *Reader) UTF() (string, error) {
	b, err := r.ShortBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.Wrap(ErrProtocolFraming, "string is not valid UTF-8")
	}
	return string(b), nil
}

// Status reads a status code. A nonzero code is followed by a message and is
// returned as an error matching ErrRemote and the sentinel of the code.
func (r *Reader) Status() error {
	code, err := r.Uint16()
	if err != nil {
		return err
	}
	if store.RetCode(code) == store.RetCSuccess {
		return nil
	}
	msg, err := r.UTF()
	if err != nil {
		return err
	}
	return errors.Mark(store.ErrorOf(store.RetCode(code), msg), ErrRemote)
}

// --------------------------------------------------------------------------
// Writer
// --------------------------------------------------------------------------

// Writer buffers the primitives of the wire format until Flush is called.
// Errors are sticky, the first error is returned by every later call.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter creates a writer on top of w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) write(b []byte) {
	if w.err == nil {
		_, w.err = w.w.Write(b)
	}
}

// Uint8 writes one byte
func (w *Writer) Uint8(v uint8) *Writer {
	w.write([]byte{v})
	return w
}

// Uint16 writes a big-endian uint16
func (w *Writer) Uint16(v uint16) *Writer {
	w.write(binary.BigEndian.AppendUint16(nil, v))
	return w
}

// Uint32 writes a big-endian uint32
func (w *Writer) Uint32(v uint32) *Writer {
	w.write(binary.BigEndian.AppendUint32(nil, v))
	return w
}

// ShortBytes writes a uint16 length followed by b
func (w *Writer) ShortBytes(b []byte) *Writer {
	if len(b) > math.MaxUint16 && w.err == nil {
		w.err = errors.Newf("field too long for uint16 length: %d bytes", len(b))
	}
	w.Uint16(uint16(len(b)))
	w.write(b)
	return w
}

// LongBytes writes a uint32 length followed by b
func (w *Writer) LongBytes(b []byte) *Writer {
	if uint64(len(b)) > math.MaxUint32 && w.err == nil {
		w.err = errors.Newf("field too long for uint32 length: %d bytes", len(b))
	}
	w.Uint32(uint32(len(b)))
	w.write(b)
	return w
}

// UTF writes a uint16 length prefixed string
func (w *Writer) UTF(s string) *Writer {
	return w.ShortBytes([]byte(s))
}

// Flush writes all buffered data to the underlying writer
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// --------------------------------------------------------------------------
// Requests (client side)
// --------------------------------------------------------------------------

// header writes opcode, store name and key
func (w *Writer) header(op OpCode, storeName string, key []byte) *Writer {
	return w.Uint8(uint8(op)).UTF(storeName).LongBytes(key)
}

// WriteGetRequest writes and flushes a GET request
func (w *Writer) WriteGetRequest(storeName string, key []byte) error {
	return w.header(OpGet, storeName, key).Flush()
}

// WritePutRequest writes and flushes a PUT request
func (w *Writer) WritePutRequest(storeName string, key []byte, value versioning.Versioned) error {
	return w.header(OpPut, storeName, key).LongBytes(value.Encode()).Flush()
}

// WriteDeleteRequest writes and flushes a DELETE request
func (w *Writer) WriteDeleteRequest(storeName string, key []byte, clock versioning.VectorClock) error {
	return w.header(OpDelete, storeName, key).ShortBytes(clock.Encode()).Flush()
}

// ReadGetResponse reads the response of a GET request
func (r *Reader) ReadGetResponse() ([]versioning.Versioned, error) {
	if err := r.Status(); err != nil {
		return nil, err
	}
	count, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if count > r.max/4 {
		return nil, errors.Wrapf(ErrProtocolFraming, "version count %d exceeds limit", count)
	}
	versions := make([]versioning.Versioned, 0, count)
	for i := uint32(0); i < count; i++ {
		buf, err := r.LongBytes()
		if err != nil {
			return nil, err
		}
		v, err := versioning.DecodeVersioned(buf)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// ReadPutResponse reads the response of a PUT request
func (r *Reader) ReadPutResponse() error {
	return r.Status()
}

// ReadDeleteResponse reads the response of a DELETE request
func (r *Reader) ReadDeleteResponse() (bool, error) {
	if err := r.Status(); err != nil {
		return false, err
	}
	ok, err := r.Uint8()
	if err != nil {
		return false, framingError(err, "read delete result")
	}
	return ok != 0, nil
}

// --------------------------------------------------------------------------
// Responses (server side)
// --------------------------------------------------------------------------

// WriteGetResponse writes and flushes a successful GET response
func (w *Writer) WriteGetResponse(versions []versioning.Versioned) error {
	w.Uint16(uint16(store.RetCSuccess)).Uint32(uint32(len(versions)))
	for _, v := range versions {
		w.LongBytes(v.Encode())
	}
	return w.Flush()
}

// WritePutResponse writes and flushes a successful PUT response
func (w *Writer) WritePutResponse() error {
	return w.Uint16(uint16(store.RetCSuccess)).Flush()
}

// WriteDeleteResponse writes and flushes a successful DELETE response
func (w *Writer) WriteDeleteResponse(deleted bool) error {
	var b uint8
	if deleted {
		b = 1
	}
	return w.Uint16(uint16(store.RetCSuccess)).Uint8(b).Flush()
}

// WriteError writes and flushes an error response: the code of err and its message.
func (w *Writer) WriteError(err error) error {
	msg := err.Error()
	if len(msg) > math.MaxUint16 {
		msg = msg[:math.MaxUint16]
		for !utf8.ValidString(msg) {
			msg = msg[:len(msg)-1]
		}
	}
	code := store.CodeOf(err)
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return w.Uint16(uint16(code)).UTF(msg).Flush()
}
