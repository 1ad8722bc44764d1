package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"gocloud.dev/blob"

	"github.com/ligustah/blobget/internal/config"
	"github.com/ligustah/blobget/internal/downloader"
	"github.com/ligustah/blobget/internal/logging"
	"github.com/ligustah/blobget/internal/progress"
	"github.com/ligustah/blobget/pkg/blobget"
	"github.com/ligustah/blobget/pkg/blobrpc"
)

func runGet(args []string) int {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)

	address := fs.String("address", "", "Blob service address, host:port")
	holders := fs.StringArray("holder", nil, "Holder to download (repeatable, positional arguments also accepted)")
	output := fs.String("output", "", "Destination bucket URL, or - for stdout (required)")
	prefix := fs.String("prefix", "", "Key prefix for objects written to the destination bucket")
	workers := fs.Int("workers", 0, "Number of holders downloaded in parallel (default 4)")
	queue := fs.Int("queue", 0, "Chunks buffered per session (default 100)")
	showProgress := fs.Bool("progress", false, "Show progress on stderr")
	configPath := fs.String("config", "", "Path to a YAML config file")
	sharedErrors := fs.Bool("shared-errors", false, "Let a failure of one holder fail calls for every holder")
	verbosity := fs.IntP("verbosity", "v", 0, "Log verbosity")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: blobget get [options] [holder...]

Download blobs from the blob service. Each holder is stored in the
destination bucket under <prefix><holder>. With --output - a single holder
is written to stdout.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	all := append(append([]string(nil), *holders...), fs.Args()...)
	if len(all) == 0 || *output == "" {
		fmt.Fprintln(os.Stderr, "Error: at least one holder and --output are required")
		fs.Usage()
		return ExitInvalidArgs
	}
	if *output == "-" && len(all) != 1 {
		fmt.Fprintln(os.Stderr, "Error: --output - takes exactly one holder")
		return ExitInvalidArgs
	}

	override := config.Config{
		Address:       *address,
		Workers:       *workers,
		QueueCapacity: *queue,
		Progress:      *showProgress,
		LogVerbosity:  *verbosity,
	}
	if *sharedErrors {
		override.ErrorScope = config.ScopeShared
	}

	cfg, err := loadConfig(*configPath, override)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	scope, err := blobget.ParseScope(cfg.ErrorScope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	logger := logging.NewLogger(cfg.LogVerbosity, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[blobget] Received interrupt, shutting down...")
		cancel()
	}()

	bridge := blobget.New(
		blobget.GRPCDialer(cfg.Address, rpcOptions(cfg)),
		blobget.WithQueueCapacity(cfg.QueueCapacity),
		blobget.WithErrorScope(scope),
		blobget.WithLogger(logger.WithName("bridge")),
	)
	defer bridge.Close()

	if *output == "-" {
		return getToStdout(ctx, bridge, all[0])
	}
	return getToBucket(ctx, bridge, cfg, all, *output, *prefix)
}

func rpcOptions(cfg config.Config) blobrpc.Options {
	opts := blobrpc.DefaultOptions()
	opts.ConnectTimeout = cfg.Connect.Timeout
	opts.RetryAttempts = cfg.Connect.Attempts
	opts.RetryBackoff = cfg.Connect.Backoff
	opts.RetryMaxBackoff = cfg.Connect.MaxBackoff
	return opts
}

func getToStdout(ctx context.Context, bridge *blobget.Bridge, holder string) int {
	if err := bridge.InitializeContext(ctx, holder); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	n, err := downloader.Copy(ctx, bridge, holder, os.Stdout, nil)
	if termErr := bridge.Terminate(holder); err == nil {
		err = termErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	fmt.Fprintf(os.Stderr, "[blobget] Received %s\n", progress.FormatBytes(n))
	return ExitSuccess
}

func getToBucket(ctx context.Context, bridge *blobget.Bridge, cfg config.Config, holders []string, bucketURL, prefix string) int {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalHolders: len(holders),
			Workers:      cfg.Workers,
			Source:       cfg.Address,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	err = downloader.Download(ctx, bridge, holders, bucket, downloader.Options{
		Workers:  cfg.Workers,
		Prefix:   prefix,
		Progress: reporter,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var cbErr *downloader.CircuitBreakerError
		if errors.As(err, &cbErr) {
			for _, f := range cbErr.FailedHolders {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Holder, f.Error)
			}
		}
		var dlErr *downloader.DownloadError
		if errors.As(err, &dlErr) {
			for _, f := range dlErr.FailedHolders {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Holder, f.Error)
			}
		}
		return exitCode(err)
	}

	fmt.Fprintf(os.Stderr, "[blobget] Downloaded %d holders to %s\n", len(holders), bucketURL)
	return ExitSuccess
}
