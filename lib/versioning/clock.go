package versioning

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	countSize     = 2                         // uint16 entry count
	entrySize     = 2 + 8                     // uint16 node id + uint64 counter
	timestampSize = 8                         // int64 unix millis
	headerSize    = countSize + timestampSize // size of an empty clock

	// MaxEntries is the largest number of entries an encoded clock can hold
	MaxEntries = math.MaxUint16
)

// --------------------------------------------------------------------------
// Compare Result
// --------------------------------------------------------------------------

// Occurred describes how two vector clocks relate to each other
type Occurred int

const (
	Before     Occurred = iota // the first clock happened before the second
	After                      // the first clock happened after the second
	Equal                      // both clocks are causally identical
	Concurrent                 // neither clock dominates, the writes conflict
)

func (o Occurred) String() string {
	switch o {
	case Before:
		return "Before"
	case After:
		return "After"
	case Equal:
		return "Equal"
	case Concurrent:
		return "Concurrent"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Vector Clock
// --------------------------------------------------------------------------

// ClockEntry is the counter of a single node in a vector clock
type ClockEntry struct {
	NodeID  uint16
	Counter uint64
}

// VectorClock is an immutable version vector: a set of per-node counters sorted by
// node id plus a wall-clock timestamp (unix millis).
// The zero value is the empty clock.
type VectorClock struct {
	entries   []ClockEntry
	timestamp int64
}

// NewVectorClock returns an empty clock stamped with the current time
func NewVectorClock() VectorClock {
	return VectorClock{timestamp: time.Now().UnixMilli()}
}

// NewVectorClockOf creates a clock from the given entries and timestamp.
// Entries are sorted, duplicate node ids keep the largest counter and zero
// counters are dropped since they are equivalent to a missing entry.
func NewVectorClockOf(timestamp int64, entries ...ClockEntry) VectorClock {
	counters := make(map[uint16]uint64, len(entries))
	for _, e := range entries {
		if e.Counter > counters[e.NodeID] {
			counters[e.NodeID] = e.Counter
		}
	}
	return VectorClock{entries: sortedEntries(counters), timestamp: timestamp}
}

// Entries returns a copy of the entries of the clock sorted by node id
func (vc VectorClock) Entries() []ClockEntry {
	out := make([]ClockEntry, len(vc.entries))
	copy(out, vc.entries)
	return out
}

// Counter returns the counter of the given node (0 if the node is not part of the clock)
func (vc VectorClock) Counter(nodeID uint16) uint64 {
	i := sort.Search(len(vc.entries), func(i int) bool { return vc.entries[i].NodeID >= nodeID })
	if i < len(vc.entries) && vc.entries[i].NodeID == nodeID {
		return vc.entries[i].Counter
	}
	return 0
}

// MaxVersion returns the largest counter of any node in the clock
func (vc VectorClock) MaxVersion() uint64 {
	var max uint64
	for _, e := range vc.entries {
		if e.Counter > max {
			max = e.Counter
		}
	}
	return max
}

// Timestamp returns the wall-clock time of the last change to the clock
func (vc VectorClock) Timestamp() time.Time {
	return time.UnixMilli(vc.timestamp)
}

// Increment returns a copy of the clock where the counter of nodeID is increased by one.
// The entry is created if the node is not yet part of the clock. The receiver is not modified.
// ErrClockOverflow is returned if the counter is at its maximum or a new entry would
// exceed MaxEntries.
func (vc VectorClock) Increment(nodeID uint16) (VectorClock, error) {
	entries := make([]ClockEntry, 0, len(vc.entries)+1)
	inserted := false
	for _, e := range vc.entries {
		if !inserted && e.NodeID >= nodeID {
			if e.NodeID == nodeID {
				if e.Counter == math.MaxUint64 {
					return VectorClock{}, errors.Wrapf(ErrClockOverflow, "counter of node %d", nodeID)
				}
				e.Counter++
			} else {
				entries = append(entries, ClockEntry{NodeID: nodeID, Counter: 1})
			}
			inserted = true
		}
		entries = append(entries, e)
	}
	if !inserted {
		entries = append(entries, ClockEntry{NodeID: nodeID, Counter: 1})
	}
	if len(entries) > MaxEntries {
		return VectorClock{}, errors.Wrapf(ErrClockOverflow, "clock is full (%d entries)", MaxEntries)
	}
	return VectorClock{entries: entries, timestamp: time.Now().UnixMilli()}, nil
}

// Incremented is like Increment but panics on overflow.
// It is meant for clocks with a known small size, e.g. in tests and examples.
func (vc VectorClock) Incremented(nodeID uint16) VectorClock {
	inc, err := vc.Increment(nodeID)
	if err != nil {
		panic(err)
	}
	return inc
}

// Merge returns the entrywise maximum of both clocks. The result dominates or equals both inputs.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	counters := make(map[uint16]uint64, len(vc.entries)+len(other.entries))
	for _, e := range vc.entries {
		counters[e.NodeID] = e.Counter
	}
	for _, e := range other.entries {
		if e.Counter > counters[e.NodeID] {
			counters[e.NodeID] = e.Counter
		}
	}
	ts := vc.timestamp
	if other.timestamp > ts {
		ts = other.timestamp
	}
	return VectorClock{entries: sortedEntries(counters), timestamp: ts}
}

// Compare returns how the clock relates to other (see Compare)
func (vc VectorClock) Compare(other VectorClock) Occurred {
	return Compare(vc, other)
}

// Equal reports whether both clocks are causally identical. The timestamp is ignored.
func (vc VectorClock) Equal(other VectorClock) bool {
	return Compare(vc, other) == Equal
}

// String returns a compact representation like "{1:3, 4:1}@2024-01-01T00:00:00Z"
func (vc VectorClock) String() string {
	parts := make([]string, 0, len(vc.entries))
	for _, e := range vc.entries {
		parts = append(parts, fmt.Sprintf("%d:%d", e.NodeID, e.Counter))
	}
	return "{" + strings.Join(parts, ", ") + "}@" + vc.Timestamp().UTC().Format(time.RFC3339)
}

// Compare compares two clocks:
//   - Before: every counter of a is <= the counter in b and at least one is smaller
//   - After: the dual of Before
//   - Equal: all counters are equal
//   - Concurrent: otherwise
//
// Missing entries count as 0.
func Compare(a, b VectorClock) Occurred {
	var aBigger, bBigger bool
	i, j := 0, 0
	for i < len(a.entries) || j < len(b.entries) {
		switch {
		case j >= len(b.entries) || (i < len(a.entries) && a.entries[i].NodeID < b.entries[j].NodeID):
			if a.entries[i].Counter > 0 {
				aBigger = true
			}
			i++
		case i >= len(a.entries) || b.entries[j].NodeID < a.entries[i].NodeID:
			if b.entries[j].Counter > 0 {
				bBigger = true
			}
			j++
		default:
			if a.entries[i].Counter > b.entries[j].Counter {
				aBigger = true
			} else if a.entries[i].Counter < b.entries[j].Counter {
				bBigger = true
			}
			i++
			j++
		}
		if aBigger && bBigger {
			return Concurrent
		}
	}

	switch {
	case aBigger:
		return After
	case bBigger:
		return Before
	default:
		return Equal
	}
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// Validate reports ErrClockOverflow if the clock has more entries than an encoded clock can hold.
// Such clocks can only be built with Merge or NewVectorClockOf.
func (vc VectorClock) Validate() error {
	if len(vc.entries) > MaxEntries {
		return errors.Wrapf(ErrClockOverflow, "clock has %d entries (max %d)", len(vc.entries), MaxEntries)
	}
	return nil
}

// SizeInBytes returns the exact length of the encoded clock
func (vc VectorClock) SizeInBytes() int {
	return headerSize + entrySize*len(vc.entries)
}

// Encode returns the binary representation of the clock
func (vc VectorClock) Encode() []byte {
	return vc.AppendTo(make([]byte, 0, vc.SizeInBytes()))
}

// AppendTo appends the binary representation of the clock to buf and returns the extended buffer.
// The clock must be valid (see Validate).
func (vc VectorClock) AppendTo(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(vc.entries)))
	for _, e := range vc.entries {
		buf = binary.BigEndian.AppendUint16(buf, e.NodeID)
		buf = binary.BigEndian.AppendUint64(buf, e.Counter)
	}
	return binary.BigEndian.AppendUint64(buf, uint64(vc.timestamp))
}

// DecodeVectorClock decodes the clock at the beginning of buf.
// Trailing bytes are ignored, use SizeInBytes on the result to locate them.
func DecodeVectorClock(buf []byte) (VectorClock, error) {
	if len(buf) < headerSize {
		return VectorClock{}, errors.Wrapf(ErrMalformedVersion,
			"buffer of %d bytes is too short for a clock header", len(buf))
	}

	count := int(binary.BigEndian.Uint16(buf[:countSize]))
	size := headerSize + entrySize*count
	if len(buf) < size {
		return VectorClock{}, errors.Wrapf(ErrMalformedVersion,
			"clock declares %d entries (%d bytes) but only %d bytes remain", count, size, len(buf))
	}

	entries := make([]ClockEntry, 0, count)
	pos := countSize
	for n := 0; n < count; n++ {
		e := ClockEntry{
			NodeID:  binary.BigEndian.Uint16(buf[pos : pos+2]),
			Counter: binary.BigEndian.Uint64(buf[pos+2 : pos+entrySize]),
		}
		if n > 0 && e.NodeID <= entries[n-1].NodeID {
			return VectorClock{}, errors.Wrapf(ErrMalformedVersion,
				"node ids are not strictly increasing at entry %d", n)
		}
		entries = append(entries, e)
		pos += entrySize
	}

	return VectorClock{
		entries:   entries,
		timestamp: int64(binary.BigEndian.Uint64(buf[pos : pos+timestampSize])),
	}, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func sortedEntries(counters map[uint16]uint64) []ClockEntry {
	entries := make([]ClockEntry, 0, len(counters))
	for node, ctr := range counters {
		if ctr > 0 {
			entries = append(entries, ClockEntry{NodeID: node, Counter: ctr})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].NodeID < entries[j].NodeID })
	return entries
}
