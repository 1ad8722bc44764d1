package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ligustah/blobget/internal/config"
	"github.com/ligustah/blobget/internal/logging"
	"github.com/ligustah/blobget/internal/metrics"
	"github.com/ligustah/blobget/internal/progress"
	"github.com/ligustah/blobget/pkg/blobrpc"
)

func runServe(args []string) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)

	listen := fs.String("listen", "", "gRPC listen address (default :50053)")
	bucketURL := fs.String("bucket", "", "Bucket URL holding the blobs (required)")
	chunkSize := fs.String("chunk-size", "", "Size of each streamed chunk, e.g. 1MB (default 1MiB)")
	verify := fs.Bool("verify", false, "Verify shard checksums of sharded blobs while streaming")
	metricsAddr := fs.String("metrics", "", "Serve Prometheus metrics on this address")
	configPath := fs.String("config", "", "Path to a YAML config file")
	verbosity := fs.IntP("verbosity", "v", 0, "Log verbosity")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: blobget serve [options]

Serve blobs from a bucket over the blob.BlobService gRPC API. A holder names
an object key, or a sharded blob when <holder>.manifest.json exists.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	override := config.Config{
		LogVerbosity: *verbosity,
		Server: config.ServerConfig{
			Listen:         *listen,
			Bucket:         *bucketURL,
			VerifyChecksum: *verify,
			MetricsListen:  *metricsAddr,
		},
	}
	if *chunkSize != "" {
		size, err := progress.ParseBytes(*chunkSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid chunk size: %v\n", err)
			return ExitInvalidArgs
		}
		override.Server.ChunkSize = size
	}

	cfg, err := loadConfig(*configPath, override)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	logger := logging.NewLogger(cfg.LogVerbosity, false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logr.NewContext(ctx, logger)

	bucket, err := blob.OpenBucket(ctx, cfg.Server.Bucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	lis, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: listen on %s: %v\n", cfg.Server.Listen, err)
		return ExitGeneralError
	}

	if err := serve(ctx, logger, bucket, lis, cfg.Server); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	return ExitSuccess
}

// serve runs the blob service on lis, and the metrics endpoint when
// configured, until ctx is done.
func serve(ctx context.Context, logger logr.Logger, bucket *blob.Bucket, lis net.Listener, cfg config.ServerConfig) error {
	srv := grpc.NewServer()
	blobrpc.RegisterBlobServiceServer(srv, &blobrpc.BucketServer{
		Bucket:         bucket,
		ChunkSize:      int(cfg.ChunkSize),
		VerifyChecksum: cfg.VerifyChecksum,
		Logger:         logger.WithName("server"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return blobrpc.Serve(gctx, "blob", srv, lis)
	})

	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.Register(reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		hs := &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	fmt.Fprintf(os.Stderr, "[blobget] Serving %s on %s\n", cfg.Bucket, lis.Addr())
	return g.Wait()
}
