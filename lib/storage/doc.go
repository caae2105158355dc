/*
Package storage manages the physical backend environments of a node and the
stores that live inside them.

The EnvironmentManager owns the lifecycle:

	NewEnvironmentManager -> [uninitialized] -> Init -> [ready] -> Close -> [closed]

Its configuration (backend options, layout policy and master directory) is validated
and frozen at construction. Stores can only be opened while the manager is ready,
otherwise store.ErrStorageInitialization is returned.

Layout policies:

  - shared (default): all stores are tables of one environment rooted at the master directory
  - file-per-store: every store gets its own environment in <MasterDir>/<name>

Environments are opened on first use and kept in the manager. Close closes every store,
then syncs and closes every environment exactly once and releases the engine.

The Registry is a concurrent map from store name to store. GetOrCreateStore is
idempotent under races: all callers get the same store, the redundant handles of
losing callers are closed.

Usage:

	m, err := storage.NewEnvironmentManager(storage.Config{
		MasterDir: "/var/lib/vkv",
		Options:   db.DefaultOptions(),
	}, pebble.NewEngine)
	if err != nil {
		return err
	}
	if err := m.Init(); err != nil {
		return err
	}
	defer m.Close()

	s, err := m.GetOrCreateStore("users")
*/
package storage
