// Package sharded reads blobs stored as multiple shards in cloud storage.
//
// Large blobs are kept as a manifest plus numbered shard objects so that
// they can be written in parallel. The blob server uses this package to
// stream such a blob back as a single ordered byte stream. Storage access
// goes through gocloud.dev/blob, so any bucket driver works.
//
// # Reading
//
// Use [ReadFromBucket] to open a sharded blob. The returned [Reader] streams
// all shards in manifest order. With [WithVerifyChecksum] each shard's
// SHA-256 is checked against the manifest when the shard is exhausted.
//
// # Storage Layout
//
//	{bucket}/{dest}.shards/shard-000000
//	{bucket}/{dest}.shards/shard-000001
//	{bucket}/{dest}.manifest.json
//
// # Manifest Format
//
//	{
//	  "total_size": 1073741824,
//	  "shard_size": 268435456,
//	  "parts_prefix": "path/to/blob.shards/",
//	  "shards": [
//	    {"object": "shard-000000", "offset": 0, "size": 268435456, "checksum": "..."},
//	    ...
//	  ],
//	  "metadata": {"source": "..."},
//	  "completed_at": "2025-01-15T10:30:00Z"
//	}
package sharded
