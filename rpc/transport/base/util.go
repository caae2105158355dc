package base

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/cockroachdb/errors"
)

// ErrFrameTooLarge is returned by ReadFrame for frames above the limit
var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes a frame to the connection with the format:
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func WriteFrame(conn net.Conn, data []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// ReadFrame reads one frame from the connection. A clean end of stream before the
// header is returned as io.EOF, frames longer than maxBytes are rejected.
func ReadFrame(conn net.Conn, maxBytes int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	contentLength := binary.BigEndian.Uint32(header[:])
	if maxBytes > 0 && uint64(contentLength) > uint64(maxBytes) {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d bytes (limit %d)", contentLength, maxBytes)
	}
	if contentLength == 0 {
		return []byte{}, nil
	}

	data := make([]byte, contentLength)
	if _, err := io.ReadFull(conn, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}
