package blobrpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
)

// Serve runs srv on lis until ctx is done, then stops it gracefully.
// The name is only used for logging. The logger is taken from ctx.
func Serve(ctx context.Context, name string, srv *grpc.Server, lis net.Listener) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("name", name)
	log.Info("gRPC server listening", "addr", lis.Addr().String())

	// Make sure the goroutine does not leak.
	doneCh := make(chan struct{})
	defer close(doneCh)
	go func() {
		select {
		case <-ctx.Done():
			log.Info("gRPC server shutting down")
			srv.GracefulStop()
		case <-doneCh:
		}
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server failed: %w", err)
	}
	log.Info("gRPC server terminated")
	return nil
}
