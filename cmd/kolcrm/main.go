// Command kolcrm serves the KOL CRM HTTP API.
package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"kolcrm/internal/adapters/web"
	"kolcrm/internal/blob"
	"kolcrm/internal/config"
	"kolcrm/internal/core"
	"kolcrm/internal/export"
	"kolcrm/internal/infra/blob/s3"
	"kolcrm/internal/notify"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "kolcrm:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := core.NewZerologLogger(cfg.Server.Env, cfg.OTEL.ServiceName, os.Stdout)

	tracer := core.Tracer(nil)
	if cfg.OTEL.Endpoint != "" {
		shutdown, err := core.SetupOTLP(ctx, cfg.OTEL.ServiceName, cfg.OTEL.Endpoint)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("tracer shutdown", "error", err)
			}
		}()
		tracer = core.NewOTelTracer(nil)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRecorder, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	metrics := core.MultiMetricsRecorder{promRecorder, core.NewExpvarMetricsRecorder("kolcrm_service")}

	store, closer, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine(), logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	flash := notify.NewFlash(cfg.FlashTTL)
	notifiers := notify.Multi{flash}
	if len(cfg.Kafka.Brokers) > 0 {
		kn := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), func(event notify.Event, err error) {
			logger.Warn("publish event", "kind", string(event.Kind), "error", err)
		})
		defer kn.Close()
		notifiers = append(notifiers, kn)
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithNotifier(notifiers),
	}
	if tracer != nil {
		opts = append(opts, core.WithTracer(tracer))
	}
	svc := core.NewService(store, opts...)

	if cfg.SeedRoster {
		n, err := svc.SeedDefaultRoster(ctx)
		if err != nil {
			return fmt.Errorf("seed roster: %w", err)
		}
		if n > 0 {
			logger.Info("seeded default roster", "experts", n)
		}
	}

	blobs, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: s3.Config{
			Bucket:    cfg.Blob.S3.Bucket,
			Region:    cfg.Blob.S3.Region,
			Endpoint:  cfg.Blob.S3.Endpoint,
			Prefix:    cfg.Blob.S3.Prefix,
			PathStyle: cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	exporter := export.NewExporter(blobs, export.WithExportNotifier(notifiers))

	if !cfg.Server.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := gin.New()
	server.Use(gin.Recovery())
	web.NewHandler(svc,
		web.WithExporter(exporter),
		web.WithFlash(flash),
		web.WithPasscode(cfg.Server.Passcode),
		web.WithLogger(logger),
		web.WithRegistry(reg),
	).RegisterRoutes(server)
	server.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: server, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "blob", string(blobs.Driver()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
