package vstore

import (
	"encoding/binary"

	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/cockroachdb/errors"
)

// encodeSiblings serializes a sibling set as stored in the backend:
//
//	uint32 count | count x (uint32 length | clock | value)
func encodeSiblings(siblings []versioning.Versioned) []byte {
	size := 4
	for _, s := range siblings {
		size += 4 + s.SizeInBytes()
	}

	buf := make([]byte, 4, size)
	binary.BigEndian.PutUint32(buf, uint32(len(siblings)))
	for _, s := range siblings {
		buf = binary.BigEndian.AppendUint32(buf, uint32(s.SizeInBytes()))
		buf = s.AppendTo(buf)
	}
	return buf
}

// decodeSiblings is the inverse of encodeSiblings. Errors wrap versioning.ErrMalformedVersion.
func decodeSiblings(buf []byte) ([]versioning.Versioned, error) {
	if len(buf) < 4 {
		return nil, errors.Wrapf(versioning.ErrMalformedVersion, "sibling record too short (%d bytes)", len(buf))
	}
	count := binary.BigEndian.Uint32(buf)
	buf = buf[4:]

	// every sibling needs at least its length field
	if uint64(count)*4 > uint64(len(buf)) {
		return nil, errors.Wrapf(versioning.ErrMalformedVersion, "sibling count %d does not fit record", count)
	}

	siblings := make([]versioning.Versioned, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 4 {
			return nil, errors.Wrapf(versioning.ErrMalformedVersion, "sibling %d: missing length", i)
		}
		n := binary.BigEndian.Uint32(buf)
		buf = buf[4:]
		if uint64(n) > uint64(len(buf)) {
			return nil, errors.Wrapf(versioning.ErrMalformedVersion, "sibling %d: length %d exceeds record", i, n)
		}
		v, err := versioning.DecodeVersioned(buf[:n])
		if err != nil {
			return nil, errors.Wrapf(err, "sibling %d", i)
		}
		siblings = append(siblings, v)
		buf = buf[n:]
	}
	if len(buf) != 0 {
		return nil, errors.Wrapf(versioning.ErrMalformedVersion, "%d trailing bytes after siblings", len(buf))
	}
	return siblings, nil
}
