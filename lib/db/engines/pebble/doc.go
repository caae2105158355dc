/*
Package pebble implements the db.Engine contract on top of cockroachdb/pebble,
an LSM based ordered key-value store.

Every Environment is one pebble database rooted in a directory. Tables are
stored in the same keyspace and separated by a key prefix:

	+-------------------+-----------+-----------+
	| uint16 len(name)  | name      | key       |
	+-------------------+-----------+-----------+

The engine options are mapped to pebble as follows:

  - CacheSizeBytes: one block cache shared by every environment of the engine
  - DurabilityFull: every write is committed with pebble.Sync
  - DurabilityWriteBuffered: writes use pebble.NoSync, the WAL is synced every CheckpointBytes
  - DurabilityRelaxed: the WAL is disabled, data reaches disk when memtables are flushed
  - CheckpointBytes: BytesPerSync of sstables (and WALBytesPerSync when write-buffered)
  - CheckpointInterval: a background goroutine flushes the memtables periodically
  - MaxSegmentBytes: TargetFileSize of the sstables
  - Fanout: BlockRestartInterval of the data blocks

Environment.Sync writes a synced WAL record and flushes the memtables.
Environment.Close syncs before closing and is idempotent.

Pebble's internal logging is forwarded to the "db" logger.
*/
package pebble
