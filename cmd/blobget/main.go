package main

import (
	"errors"
	"fmt"
	"os"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/blobget/internal/config"
	"github.com/ligustah/blobget/internal/downloader"
	"github.com/ligustah/blobget/pkg/blobget"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitConnectionError = 3
	ExitStorageError    = 5
	ExitPartialDownload = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "get":
		return runGet(cmdArgs)
	case "serve":
		return runServe(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: blobget <command> [options]

Commands:
  get       Download blobs from the blob service into a bucket or stdout
  serve     Run a blob service backed by a bucket

Run 'blobget <command> -h' for command-specific help.`)
}

// loadConfig layers defaults, the optional YAML file, .env, the environment
// and finally command line overrides.
func loadConfig(path string, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		fileCfg, err := config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		return config.Config{}, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg.Merge(override), nil
}

// exitCode maps a download error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var dlErr *downloader.DownloadError
	if errors.As(err, &dlErr) && len(dlErr.FailedHolders) < dlErr.Total {
		return ExitPartialDownload
	}

	switch {
	case blobget.IsKind(err, blobget.KindConnection):
		return ExitConnectionError
	case errors.Is(err, downloader.ErrStorage):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}
