// Package blobget lets synchronous callers download blobs from the blob
// service one chunk at a time.
//
// A [Bridge] owns a registry of sessions keyed by holder. Initialize opens a
// connection and starts a receiver goroutine that drains the streaming Get
// call into a bounded queue. BlockingRead hands out the queued chunks in
// order and blocks while the queue is empty. Terminate cancels the receiver,
// waits for it and removes the session.
//
// Failures seen by a receiver cannot be returned to anyone directly, so they
// are recorded in the bridge's [ErrorLog] and surface on the next call for
// that holder (or for any holder with [ScopeShared]).
//
// Basic usage:
//
//	bridge := blobget.New(blobget.GRPCDialer("blob.example.com:50053", blobrpc.DefaultOptions()))
//	defer bridge.Close()
//
//	if err := bridge.Initialize("blob-123"); err != nil {
//	    return err
//	}
//	for {
//	    chunk, err := bridge.BlockingRead("blob-123")
//	    if err != nil {
//	        return err
//	    }
//	    if len(chunk) == 0 {
//	        break // end of stream
//	    }
//	    w.Write(chunk)
//	}
//	return bridge.Terminate("blob-123")
//
// Go callers that want cancellation use the Context variants. ReadContext
// reports end of stream as io.EOF instead of an empty chunk.
//
// Calls for different holders may run concurrently. Calls for the same
// holder must not overlap. If two Initialize calls for one holder race, one
// of them fails with ErrSessionExists, and a read waiting on a session that
// another call terminates fails with ErrTerminated.
package blobget
