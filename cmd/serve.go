package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/api"
	"github.com/sells-group/loomtrack/internal/monitoring"
	"github.com/sells-group/loomtrack/internal/ocr"
	"github.com/sells-group/loomtrack/internal/screenshot"
)

const (
	shutdownTimeout  = 15 * time.Second
	queueDrainPeriod = 30 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the screenshot extraction workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		ex, err := a.startExtraction(ctx)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           a.handler(ex.uploads),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ex.stop()
			return eris.Wrap(err, "server listen")
		}

		ex.stop()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// extraction is the running background side of the screenshot pipeline.
type extraction struct {
	queue   *screenshot.Queue
	uploads *screenshot.Service
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// startExtraction starts the extraction queue, the pending-record
// dispatcher and the monitoring checker. The queue runs on its own context
// so in-flight jobs can drain after ctx ends.
func (a *app) startExtraction(ctx context.Context) (*extraction, error) {
	engine, err := ocr.NewEngine(a.cfg.OCR, a.cfg.Anthropic)
	if err != nil {
		return nil, eris.Wrap(err, "init ocr engine")
	}
	return a.startExtractionWith(ctx, ocr.NewExtractor(engine, a.cfg.OCR, a.metrics)), nil
}

func (a *app) startExtractionWith(ctx context.Context, ex screenshot.RegionExtractor) *extraction {
	sc := a.cfg.Screenshot

	var resolver screenshot.NameResolver
	if sc.ResolveWorkerNames {
		resolver = a.names
	}
	proc := screenshot.NewProcessor(a.store, ex, resolver, sc.ManualReviewThreshold, a.metrics)
	queue := screenshot.NewQueue(sc.QueueSize, sc.Workers, proc, a.metrics)
	queue.Start(context.WithoutCancel(ctx))

	bg, cancel := context.WithCancel(ctx)
	e := &extraction{
		queue:   queue,
		uploads: screenshot.NewService(a.store, a.catalog, queue, sc),
		cancel:  cancel,
	}

	dispatcher := screenshot.NewDispatcher(a.store, queue,
		time.Duration(sc.SweepIntervalSecs)*time.Second,
		time.Duration(sc.StaleAfterMins)*time.Minute)
	checker := monitoring.NewChecker(
		monitoring.NewCollector(a.store, queue, a.metrics),
		monitoring.NewAlerter(monitoring.DefaultThresholds()),
		time.Minute,
	)
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		dispatcher.Run(bg)
	}()
	go func() {
		defer e.wg.Done()
		checker.Run(bg)
	}()
	return e
}

// stop ends the background loops, then drains the queue.
func (e *extraction) stop() {
	e.cancel()
	e.wg.Wait()
	if err := e.queue.Stop(queueDrainPeriod); err != nil {
		zap.L().Warn("extraction queue stop", zap.Error(err))
	}
}

func (a *app) handler(uploads *screenshot.Service) http.Handler {
	return api.NewRouter(api.Deps{
		Health:      a.store,
		Catalog:     a.catalog,
		Production:  a.production,
		Analytics:   a.analytics,
		Screenshots: uploads,
		Templates:   a.templates,
		Names:       a.names,
		Gatherer:    a.registry,
	}, a.cfg.Server)
}
