package versioning

// Versioned is an immutable pair of a raw value and the vector clock of the write
// that produced it.
type Versioned struct {
	value []byte
	clock VectorClock
}

// NewVersioned creates a new versioned value. The value is copied.
func NewVersioned(value []byte, clock VectorClock) Versioned {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return Versioned{value: valueCopy, clock: clock}
}

// Value returns the raw value. The returned slice must not be modified.
func (v Versioned) Value() []byte {
	return v.value
}

// Clock returns the vector clock of the value
func (v Versioned) Clock() VectorClock {
	return v.clock
}

// SizeInBytes returns the length of the combined encoding (clock + value)
func (v Versioned) SizeInBytes() int {
	return v.clock.SizeInBytes() + len(v.value)
}

// Encode returns the encoded clock followed by the value bytes
func (v Versioned) Encode() []byte {
	return v.AppendTo(make([]byte, 0, v.SizeInBytes()))
}

// AppendTo appends the combined encoding to buf and returns the extended buffer
func (v Versioned) AppendTo(buf []byte) []byte {
	return append(v.clock.AppendTo(buf), v.value...)
}

// DecodeVersioned splits a combined buffer into its clock and value.
// The value of the result is a copy, buf can be reused afterwards.
func DecodeVersioned(buf []byte) (Versioned, error) {
	clock, err := DecodeVectorClock(buf)
	if err != nil {
		return Versioned{}, err
	}
	return NewVersioned(buf[clock.SizeInBytes():], clock), nil
}
