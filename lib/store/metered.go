package store

import (
	"time"

	"github.com/ValentinKolb/vKV/lib/versioning"
	"github.com/cockroachdb/errors"
	"github.com/rcrowley/go-metrics"
)

// StoreStats is a snapshot of the metrics of a metered store
type StoreStats struct {
	Name         string  `json:"name"`
	Gets         int64   `json:"gets"`
	Puts         int64   `json:"puts"`
	Deletes      int64   `json:"deletes"`
	Errors       int64   `json:"errors"`
	Obsolete     int64   `json:"obsolete"`
	GetMeanMs    float64 `json:"get_mean_ms"`
	PutMeanMs    float64 `json:"put_mean_ms"`
	DeleteMeanMs float64 `json:"delete_mean_ms"`
	MaxSiblings  int64   `json:"max_siblings"`
}

// MeteredStore decorates an IStorageEngine with go-metrics timers and counters.
// The metrics are registered as "store.<name>.<metric>" in the given registry.
type MeteredStore struct {
	inner IStorageEngine

	getTimer    metrics.Timer
	putTimer    metrics.Timer
	deleteTimer metrics.Timer
	errors      metrics.Counter
	obsolete    metrics.Counter
	siblings    metrics.Histogram
}

// NewMeteredStore wraps inner. A nil registry uses metrics.DefaultRegistry.
func NewMeteredStore(inner IStorageEngine, registry metrics.Registry) *MeteredStore {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	prefix := "store." + inner.Name() + "."
	return &MeteredStore{
		inner:       inner,
		getTimer:    metrics.GetOrRegisterTimer(prefix+"get", registry),
		putTimer:    metrics.GetOrRegisterTimer(prefix+"put", registry),
		deleteTimer: metrics.GetOrRegisterTimer(prefix+"delete", registry),
		errors:      metrics.GetOrRegisterCounter(prefix+"errors", registry),
		obsolete:    ObsoleteCounter(inner.Name(), registry),
		siblings:    metrics.GetOrRegisterHistogram(prefix+"siblings", registry, metrics.NewUniformSample(1028)),
	}
}

// ObsoleteCounter returns the counter of obsolete writes of the named store.
// Stores that ignore obsolete writes report them here since Put returns no error for them.
func ObsoleteCounter(name string, registry metrics.Registry) metrics.Counter {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	return metrics.GetOrRegisterCounter("store."+name+".obsolete", registry)
}

// Unwrap returns the decorated store
func (m *MeteredStore) Unwrap() IStorageEngine {
	return m.inner
}

func (m *MeteredStore) record(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrObsoleteVersion) {
		m.obsolete.Inc(1)
		return
	}
	m.errors.Inc(1)
}

func (m *MeteredStore) Name() string {
	return m.inner.Name()
}

func (m *MeteredStore) Get(key []byte) ([]versioning.Versioned, error) {
	start := time.Now()
	versions, err := m.inner.Get(key)
	m.getTimer.UpdateSince(start)
	m.record(err)
	if err == nil {
		m.siblings.Update(int64(len(versions)))
	}
	return versions, err
}

func (m *MeteredStore) Put(key []byte, value versioning.Versioned) error {
	start := time.Now()
	err := m.inner.Put(key, value)
	m.putTimer.UpdateSince(start)
	m.record(err)
	return err
}

func (m *MeteredStore) Delete(key []byte, clock versioning.VectorClock) (bool, error) {
	start := time.Now()
	deleted, err := m.inner.Delete(key, clock)
	m.deleteTimer.UpdateSince(start)
	m.record(err)
	return deleted, err
}

func (m *MeteredStore) Close() error {
	return m.inner.Close()
}

// Stats returns a snapshot of the store metrics
func (m *MeteredStore) Stats() StoreStats {
	get, put, del := m.getTimer.Snapshot(), m.putTimer.Snapshot(), m.deleteTimer.Snapshot()
	return StoreStats{
		Name:         m.inner.Name(),
		Gets:         get.Count(),
		Puts:         put.Count(),
		Deletes:      del.Count(),
		Errors:       m.errors.Count(),
		Obsolete:     m.obsolete.Count(),
		GetMeanMs:    get.Mean() / float64(time.Millisecond),
		PutMeanMs:    put.Mean() / float64(time.Millisecond),
		DeleteMeanMs: del.Mean() / float64(time.Millisecond),
		MaxSiblings:  m.siblings.Snapshot().Max(),
	}
}
