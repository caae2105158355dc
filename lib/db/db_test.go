package db

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestParseImplementation(t *testing.T) {
	for in, want := range map[string]Implementation{"maple": ImplMaple, " Pebble ": ImplPebble} {
		got, err := ParseImplementation(in)
		if err != nil || got != want {
			t.Errorf("ParseImplementation(%q) = (%s, %v), want %s", in, got, err, want)
		}
	}
	if _, err := ParseImplementation("bolt"); err == nil {
		t.Errorf("expected error for unknown engine")
	}
}

func TestParseDurability(t *testing.T) {
	for in, want := range map[string]Durability{
		"full":           DurabilityFull,
		"write-buffered": DurabilityWriteBuffered,
		"NOSYNC":         DurabilityWriteBuffered,
		"relaxed":        DurabilityRelaxed,
	} {
		got, err := ParseDurability(in)
		if err != nil || got != want {
			t.Errorf("ParseDurability(%q) = (%s, %v), want %s", in, got, err, want)
		}
	}
	if _, err := ParseDurability("sometimes"); err == nil {
		t.Errorf("expected error for unknown durability mode")
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("default options must be valid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"negative cache", func(o *Options) { o.CacheSizeBytes = -1 }},
		{"unknown durability", func(o *Options) { o.Durability = DurabilityRelaxed + 1 }},
		{"negative checkpoint bytes", func(o *Options) { o.CheckpointBytes = -1 }},
		{"negative checkpoint interval", func(o *Options) { o.CheckpointInterval = -time.Second }},
		{"negative segment size", func(o *Options) { o.MaxSegmentBytes = -1 }},
		{"fanout too large", func(o *Options) { o.Fanout = 1<<16 + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			err := opts.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			// errors carry a stack trace like all errors of the module
			if errors.GetReportableStackTrace(err) == nil {
				t.Errorf("expected a cockroachdb error with stack trace, got %T", err)
			}
		})
	}
}
