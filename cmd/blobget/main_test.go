package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"gocloud.dev/blob"

	"github.com/ligustah/blobget/internal/config"
	"github.com/ligustah/blobget/internal/downloader"
	"github.com/ligustah/blobget/internal/testutils"
	"github.com/ligustah/blobget/pkg/blobget"
)

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no args", nil, ExitInvalidArgs},
		{"help", []string{"help"}, ExitSuccess},
		{"unknown command", []string{"upload"}, ExitInvalidArgs},
		{"get help", []string{"get", "--help"}, ExitSuccess},
		{"get without holder", []string{"get", "--address", "localhost:1", "--output", "mem://"}, ExitInvalidArgs},
		{"get without output", []string{"get", "--address", "localhost:1", "h"}, ExitInvalidArgs},
		{"get stdout with two holders", []string{"get", "--address", "localhost:1", "--output", "-", "a", "b"}, ExitInvalidArgs},
		{"get without address", []string{"get", "--output", "mem://", "h"}, ExitInvalidArgs},
		{"get bad flag", []string{"get", "--nope"}, ExitInvalidArgs},
		{"serve without bucket", []string{"serve"}, ExitInvalidArgs},
		{"serve bad chunk size", []string{"serve", "--bucket", "mem://", "--chunk-size", "lots"}, ExitInvalidArgs},
		{"serve cannot listen", []string{"serve", "--bucket", "mem://", "--listen", "no-port"}, ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.args); got != tt.want {
				t.Errorf("run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	connErr := &blobget.Error{Kind: blobget.KindConnection, Op: "initialize", Holder: "h", Err: errors.New("refused")}
	protoErr := &blobget.Error{Kind: blobget.KindProtocol, Op: "get", Holder: "h", Err: errors.New("reset")}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"connection", connErr, ExitConnectionError},
		{"storage", fmt.Errorf("%w: write h: boom", downloader.ErrStorage), ExitStorageError},
		{"protocol", protoErr, ExitGeneralError},
		{"partial", &downloader.DownloadError{Total: 2, FailedHolders: []downloader.FailedHolder{{Holder: "h", Error: protoErr}}}, ExitPartialDownload},
		{"all failed to connect", &downloader.DownloadError{Total: 1, FailedHolders: []downloader.FailedHolder{{Holder: "h", Error: connErr}}}, ExitConnectionError},
		{"circuit breaker", &downloader.CircuitBreakerError{ConsecutiveFailures: 1, FailedHolders: []downloader.FailedHolder{{Holder: "h", Error: connErr}}}, ExitConnectionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestLoadConfigOverride(t *testing.T) {
	t.Setenv("BLOBGET_WORKERS", "9")
	t.Setenv("BLOBGET_ADDRESS", "env:1")

	cfg, err := loadConfig("", config.Config{Address: "flag:2"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Address != "flag:2" {
		t.Errorf("Address = %q, want flag:2", cfg.Address)
	}
	if cfg.Workers != 9 {
		t.Errorf("Workers = %d, want 9", cfg.Workers)
	}
	if cfg.QueueCapacity != config.Default().QueueCapacity {
		t.Errorf("QueueCapacity = %d, want default", cfg.QueueCapacity)
	}
}

func TestServeAndGet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, err := blob.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatalf("open source bucket: %v", err)
	}
	defer source.Close()

	blobs := map[string][]byte{
		"blob-1": testutils.GenerateTestData(t, 300*1024),
		"blob-2": testutils.GenerateTestData(t, 10),
	}
	for holder, data := range blobs {
		if err := source.WriteAll(ctx, holder, data, nil); err != nil {
			t.Fatalf("write %s: %v", holder, err)
		}
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx, logr.Discard(), source, lis, config.ServerConfig{ChunkSize: 64 * 1024})
	}()
	defer func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("serve() error = %v", err)
		}
	}()

	dir := t.TempDir()
	code := run([]string{"get",
		"--address", lis.Addr().String(),
		"--output", "file://" + dir,
		"--prefix", "out/",
		"--workers", "2",
		"--holder", "blob-1",
		"blob-2",
	})
	if code != ExitSuccess {
		t.Fatalf("get exit code = %d, want %d", code, ExitSuccess)
	}

	for holder, want := range blobs {
		got, err := os.ReadFile(filepath.Join(dir, "out", holder))
		if err != nil {
			t.Fatalf("read %s: %v", holder, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("content mismatch for %s", holder)
		}
	}

	code = run([]string{"get", "--address", lis.Addr().String(), "--output", "file://" + dir, "blob-1", "missing"})
	if code != ExitPartialDownload {
		t.Errorf("get with missing holder exit code = %d, want %d", code, ExitPartialDownload)
	}
}
