// Package config defines configuration for the blobget CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (BLOBGET_ prefix), optionally seeded from a .env file
//   - YAML configuration file
//
// Flags win over the environment, which wins over the file.
//
// # File Format
//
//	address: blob.example.com:50053
//	queue_capacity: 100
//	workers: 4
//	error_scope: session
//	connect:
//	  timeout: 10s
//	  attempts: 5
//	  backoff: 1s
//	  max_backoff: 30s
//	server:
//	  listen: ":50053"
//	  bucket: file:///var/lib/blobs
//	  chunk_size: 1MiB
//	  metrics_listen: ":9090"
package config
