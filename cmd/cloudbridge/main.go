// cloudbridge serves on-demand file content to a Windows Cloud Files sync root.
//
// Content comes from a local directory mirror, an S3/MinIO bucket or an
// in-memory store. Placeholders are expected to exist already; cloudbridge
// hydrates them when they are opened and reports namespace changes.
//
// Usage:
//
//	cloudbridge --sync-root C:\Users\me\Cloud --source local --source-root D:\mirror
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/fruitsalade/cloudbridge/internal/cfapi"
	"github.com/fruitsalade/cloudbridge/internal/cfbridge"
	"github.com/fruitsalade/cloudbridge/internal/config"
	"github.com/fruitsalade/cloudbridge/internal/datasource"
	"github.com/fruitsalade/cloudbridge/internal/logging"
	"github.com/fruitsalade/cloudbridge/internal/metrics"
	"github.com/fruitsalade/cloudbridge/internal/winclient"
)

func main() {
	fs := pflag.NewFlagSet("cloudbridge", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "Config file (default: <user config dir>/cloudbridge/config.yaml)")
	installService := fs.Bool("install-service", false, "Install as Windows service")
	uninstallService := fs.Bool("uninstall-service", false, "Uninstall Windows service")
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	// Handle service install/uninstall
	if *installService || *uninstallService {
		var err error
		if *installService {
			err = doInstallService(*configPath)
		} else {
			err = doUninstallService()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.Output,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if isWindowsService() {
		runAsService(cfg)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("Shutting down...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logging.Error("Provider failed", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
	logging.Info("Stopped")
}

// run blocks until ctx is cancelled or the backend fails.
func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.L()

	source, handlers, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}

	sub, err := cfapi.New(logger.Named("cfapi"))
	if err != nil {
		return err
	}

	core, err := winclient.NewCore(winclient.CoreConfig{
		SyncRoot:    cfg.SyncRoot,
		WaitTimeout: cfg.Bridge.WaitTimeout,
		Bridge: cfbridge.Config{
			QueueCapacity:    cfg.Bridge.QueueCapacity,
			ChunkSize:        cfg.Bridge.ChunkSize,
			DebounceInterval: cfg.Bridge.DebounceInterval,
			Progress: func(path string, total, completed int64) {
				logger.Debug("Hydration progress", logging.Path(path),
					zap.Int64("total", total), zap.Int64("completed", completed))
			},
			Logger: logger.Named("bridge"),
		},
	}, sub, source, handlers, logger)
	if err != nil {
		return err
	}

	stopMetrics := serveMetrics(cfg.Metrics.Addr)
	defer stopMetrics()

	backend := winclient.NewCfAPIBackend(cfg.SyncRoot, logger)
	logging.Info("Starting provider",
		zap.String("backend", backend.Name()),
		zap.String("sync_root", cfg.SyncRoot),
		zap.String("source", cfg.Source.Type))

	return backend.Start(ctx, core)
}

func openSource(ctx context.Context, cfg *config.Config) (cfbridge.DataSource, winclient.Handlers, error) {
	switch cfg.Source.Type {
	case "local":
		src, err := datasource.NewLocalSource(cfg.Source.Local.Root)
		if err != nil {
			return nil, winclient.Handlers{}, err
		}
		return src, winclient.Handlers{}, nil
	case "s3":
		s3 := cfg.Source.S3
		src, err := datasource.NewS3Source(ctx, datasource.S3Config{
			Endpoint:  s3.Endpoint,
			Bucket:    s3.Bucket,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Region:    s3.Region,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return nil, winclient.Handlers{}, err
		}
		return src, winclient.Handlers{}, nil
	case "memory":
		src := datasource.NewMemorySource()
		return src, winclient.MirrorHandlers(src), nil
	default:
		return nil, winclient.Handlers{}, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

// serveMetrics exposes /metrics on addr and returns a stop function.
func serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Info("Metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
