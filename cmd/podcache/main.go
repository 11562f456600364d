// Command podcache runs a single-node, RESP-speaking key-value cache
// with a partitioned in-memory LRU engine and a content-addressable
// on-disk overflow tier.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/podcache/internal/config"
	"github.com/dreamware/podcache/internal/diskstore"
	"github.com/dreamware/podcache/internal/logging"
	"github.com/dreamware/podcache/internal/metrics"
	"github.com/dreamware/podcache/internal/server"
	"github.com/dreamware/podcache/internal/tiered"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "podcache",
		Short: "A single-node, RESP-speaking, tiered LRU key-value cache.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	bootstrapLogger, err := logging.New("info")
	if err != nil {
		return fmt.Errorf("podcache: bootstrap logger: %w", err)
	}
	defer bootstrapLogger.Sync()
	bootstrap := bootstrapLogger.Sugar()

	cfg, err := config.Load(bootstrap)
	if err != nil {
		return fmt.Errorf("podcache: load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("podcache: build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	disk, err := diskstore.New(cfg.FSRoot, sugar)
	if err != nil {
		return fmt.Errorf("podcache: init disk store: %w", err)
	}

	cache, err := tiered.New(cfg.Partitions, cfg.PartitionCapacityBytes(), disk, sugar)
	if err != nil {
		return fmt.Errorf("podcache: init cache: %w", err)
	}

	srv, err := server.New(fmt.Sprintf(":%d", cfg.ServerPort), cache, sugar)
	if err != nil {
		return fmt.Errorf("podcache: bind server: %w", err)
	}

	sugar.Infow("podcache starting",
		"addr", srv.Addr().String(),
		"partitions", cfg.Partitions,
		"partition_capacity_bytes", cfg.PartitionCapacityBytes(),
		"fsroot", cfg.FSRoot,
	)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return srv.Serve(gctx)
	})

	reporter := server.NewReporter(cache, sugar, 0)
	reporter.Start(gctx)

	var metricsSrv *metrics.Server
	if cfg.MetricsEnabled() {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, metrics.NewCollector(cache))
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("podcache: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return metricsSrv.Shutdown(context.Background())
		})
		sugar.Infow("metrics listening", "addr", cfg.MetricsAddr)
	}

	err = g.Wait()
	reporter.Stop()

	sugar.Infow("podcache shutting down")
	if destroyErr := disk.Destroy(); destroyErr != nil {
		sugar.Errorw("disk store cleanup failed", "error", destroyErr)
	}

	if err != nil {
		return fmt.Errorf("podcache: %w", err)
	}
	return nil
}
