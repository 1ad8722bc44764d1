// Package downloader fetches many blobs in parallel through a blobget
// bridge and stores them in cloud storage.
//
// # Usage
//
// The main entry point is the Download function:
//
//	err := downloader.Download(ctx, bridge, holders, bucket, downloader.Options{
//	    Workers:  8,
//	    Prefix:   "backups/",
//	    Progress: progressReporter,
//	})
//
// # Worker Pool
//
// Workers take holders from a channel. For each holder a worker opens a
// session, copies every chunk into bucket.NewWriter(Prefix+holder) and
// terminates the session. A holder that fails leaves no object behind.
//
// # Circuit Breaker
//
// MaxConsecutiveFailures failed holders in a row cancel the remaining work
// and Download returns a *CircuitBreakerError. Other failures are collected
// and returned as a *DownloadError once every holder has been tried.
package downloader
