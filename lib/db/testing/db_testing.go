package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/vKV/lib/db"
)

// EnvFactory creates a new, empty environment. Implementations should register cleanup with t.Cleanup.
type EnvFactory func(t *testing.T) db.Environment

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory EnvFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, openTable(t, factory(t), "test"))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, openTable(t, factory(t), "test"))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, openTable(t, factory(t), "test"))
		})

		t.Run("TableIsolation", func(t *testing.T) {
			testTableIsolation(t, factory(t))
		})

		t.Run("Sync", func(t *testing.T) {
			testSync(t, factory(t))
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, openTable(t, factory(t), "test"))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func openTable(t *testing.T, env db.Environment, name string) db.KVDB {
	t.Helper()
	table, err := env.OpenTable(name)
	if err != nil {
		t.Fatalf("OpenTable(%s) failed: %v", name, err)
	}
	t.Cleanup(func() { _ = table.Close() })
	return table
}

func mustGet(t *testing.T, table db.KVDB, key []byte) ([]byte, bool) {
	t.Helper()
	val, ok, err := table.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return val, ok
}

func mustPut(t *testing.T, table db.KVDB, key, value []byte) {
	t.Helper()
	if err := table.Put(key, value); err != nil {
		t.Fatalf("Put(%q) failed: %v", key, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, table db.KVDB) {
	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustPut(t, table, testKey, testValue1)

	result, exists := mustGet(t, table, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustPut(t, table, testKey, testValue2)

	result, exists = mustGet(t, table, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = mustGet(t, table, []byte("nonexistent-key")); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := mustGet(t, table, testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := mustGet(t, table, testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("input-value")
	mustPut(t, table, []byte("input-key"), input)
	input[0] = 'X'
	stored, _ := mustGet(t, table, []byte("input-key"))
	if !bytes.Equal(stored, []byte("input-value")) {
		t.Errorf("Put should store a copy of the value, got %s", stored)
	}
}

func testDelete(t *testing.T, table db.KVDB) {
	testKey := []byte("delete-key")
	mustPut(t, table, testKey, []byte("value"))

	deleted, err := table.Delete(testKey)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Errorf("Expected Delete of existing key to return true")
	}

	if _, exists := mustGet(t, table, testKey); exists {
		t.Errorf("Expected key %s to be gone after Delete", testKey)
	}

	deleted, err = table.Delete(testKey)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted {
		t.Errorf("Expected Delete of missing key to return false")
	}

	// a deleted key can be written again
	mustPut(t, table, testKey, []byte("again"))
	if val, exists := mustGet(t, table, testKey); !exists || string(val) != "again" {
		t.Errorf("Expected key to be writable after Delete, got (%s, %v)", val, exists)
	}
}

func testEdgeCases(t *testing.T, table db.KVDB) {
	// empty values are values
	mustPut(t, table, []byte("empty-value"), []byte{})
	val, exists := mustGet(t, table, []byte("empty-value"))
	if !exists {
		t.Errorf("Expected key with empty value to exist")
	}
	if len(val) != 0 {
		t.Errorf("Expected empty value, got %q", val)
	}

	// binary keys including zero bytes
	binKey := []byte{0, 1, 2, 0, 255}
	mustPut(t, table, binKey, []byte("binary"))
	if val, exists := mustGet(t, table, binKey); !exists || string(val) != "binary" {
		t.Errorf("Expected binary key to be stored, got (%q, %v)", val, exists)
	}
	if _, exists := mustGet(t, table, binKey[:3]); exists {
		t.Errorf("Prefix of a binary key must not match")
	}

	// large values
	large := bytes.Repeat([]byte("x"), 1<<20)
	mustPut(t, table, []byte("large"), large)
	if val, _ := mustGet(t, table, []byte("large")); !bytes.Equal(val, large) {
		t.Errorf("Large value was not stored correctly (len %d)", len(val))
	}
}

func testTableIsolation(t *testing.T, env db.Environment) {
	a := openTable(t, env, "a")
	b := openTable(t, env, "b")
	// table names that are prefixes of each other must not collide
	ab := openTable(t, env, "ab")

	mustPut(t, a, []byte("key"), []byte("from-a"))
	mustPut(t, b, []byte("key"), []byte("from-b"))
	mustPut(t, a, []byte("bkey"), []byte("from-a-bkey"))

	if val, _ := mustGet(t, a, []byte("key")); string(val) != "from-a" {
		t.Errorf("table a: expected from-a, got %s", val)
	}
	if val, _ := mustGet(t, b, []byte("key")); string(val) != "from-b" {
		t.Errorf("table b: expected from-b, got %s", val)
	}
	if _, exists := mustGet(t, ab, []byte("key")); exists {
		t.Errorf("table ab must not see keys of table a")
	}

	if _, err := a.Delete([]byte("key")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, exists := mustGet(t, b, []byte("key")); !exists {
		t.Errorf("Delete in table a must not affect table b")
	}

	names := env.Tables()
	for _, name := range []string{"a", "ab", "b"} {
		found := false
		for _, n := range names {
			found = found || n == name
		}
		if !found {
			t.Errorf("Tables() = %v, missing %s", names, name)
		}
	}
}

func testSync(t *testing.T, env db.Environment) {
	table := openTable(t, env, "sync")
	mustPut(t, table, []byte("k"), []byte("v"))

	if err := table.Sync(); err != nil {
		t.Errorf("table Sync failed: %v", err)
	}
	if err := env.Sync(); err != nil {
		t.Errorf("environment Sync failed: %v", err)
	}
	if val, _ := mustGet(t, table, []byte("k")); string(val) != "v" {
		t.Errorf("Expected value to survive Sync, got %s", val)
	}
}

func testConcurrent(t *testing.T, table db.KVDB) {
	const (
		workers = 8
		keys    = 200
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				key := []byte(fmt.Sprintf("w%d-k%d", w, i))
				if err := table.Put(key, key); err != nil {
					errs <- err
					return
				}
				val, ok, err := table.Get(key)
				if err != nil || !ok || !bytes.Equal(val, key) {
					errs <- fmt.Errorf("read own write %s: (%s, %v, %v)", key, val, ok, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
