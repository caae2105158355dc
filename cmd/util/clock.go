package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/cockroachdb/errors"
)

// ParseClock parses a clock given as comma separated node:counter pairs (e.g. "1:3,2:1").
// The empty string is the empty clock.
func ParseClock(s string) (versioning.VectorClock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return versioning.NewVectorClock(), nil
	}

	counters := make(map[uint16]uint64)
	for _, pair := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) != 2 {
			return versioning.VectorClock{}, errors.Newf("invalid clock entry %q (expected node:counter)", pair)
		}
		node, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return versioning.VectorClock{}, errors.Wrapf(err, "invalid node id %q", parts[0])
		}
		counter, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return versioning.VectorClock{}, errors.Wrapf(err, "invalid counter %q", parts[1])
		}
		if _, dup := counters[uint16(node)]; dup {
			return versioning.VectorClock{}, errors.Newf("duplicate node id %d", node)
		}
		counters[uint16(node)] = counter
	}

	entries := make([]versioning.ClockEntry, 0, len(counters))
	for node, counter := range counters {
		entries = append(entries, versioning.ClockEntry{NodeID: node, Counter: counter})
	}
	return versioning.NewVectorClockOf(time.Now().UnixMilli(), entries...), nil
}

// FormatClock formats a clock in the format of ParseClock
func FormatClock(vc versioning.VectorClock) string {
	entries := vc.Entries()
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%d:%d", e.NodeID, e.Counter))
	}
	return strings.Join(parts, ",")
}

// MergeClocks merges the clocks of all versions
func MergeClocks(versions []versioning.Versioned) versioning.VectorClock {
	merged := versioning.NewVectorClock()
	for _, v := range versions {
		merged = merged.Merge(v.Clock())
	}
	return merged
}
