// Package testing provides a standardised conformance suite for engines
// that implement the db.Environment and db.KVDB interfaces.
//
// The suite checks:
//   - Put/Get semantics including copy-on-read and copy-on-write of values
//   - Delete reporting whether the key existed
//   - Edge cases (empty values, binary keys, large values)
//   - Isolation of tables that live in the same environment
//   - Sync on tables and environments
//   - Concurrent writers on one table
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t *testing.T) db.Environment {
//		env, err := engine.OpenEnvironment(t.TempDir())
//		if err != nil {
//			t.Fatal(err)
//		}
//		t.Cleanup(func() { _ = env.Close() })
//		return env
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyEngine", factory)
package testing
