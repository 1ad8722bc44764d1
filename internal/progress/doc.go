// Package progress provides progress reporting for blob downloads.
//
// The bridge streams blobs without announcing their size up front, so the
// reporter tracks received bytes, throughput and per-holder session counts
// rather than a completion percentage.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalHolders: len(holders),
//	    Workers:      4,
//	    Source:       "blob.example.com:50053",
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.SessionStarted()
//	reporter.ChunkReceived(len(chunk))
//	reporter.SessionCompleted()
//
// # Output Format
//
//	[blobget] Downloading from: blob.example.com:50053
//	[blobget] Holders: 12 | Workers: 4
//	[blobget] Received: 1.2 GiB | Speed: 310 MiB/s
//	[blobget] Sessions: 5 completed | 4 in-progress | 3 pending | 0 failed
package progress
