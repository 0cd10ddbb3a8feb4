package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"

	"github.com/sells-group/loomtrack/internal/aggregate"
	"github.com/sells-group/loomtrack/internal/analytics"
	"github.com/sells-group/loomtrack/internal/catalog"
	"github.com/sells-group/loomtrack/internal/config"
	"github.com/sells-group/loomtrack/internal/monitoring"
	"github.com/sells-group/loomtrack/internal/production"
	"github.com/sells-group/loomtrack/internal/screenshot"
	"github.com/sells-group/loomtrack/internal/store"
)

// app holds the services shared by every command.
type app struct {
	cfg        *config.Config
	store      store.Store
	registry   *prometheus.Registry
	metrics    *monitoring.Metrics
	catalog    *catalog.Service
	engine     *aggregate.Engine
	production *production.Service
	analytics  *analytics.Service
	templates  *screenshot.Templates
	names      *screenshot.Names
}

// newApp wires the store-backed services. The extraction queue and OCR
// engine are added by serve only.
func newApp(c *config.Config, st store.Store) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := monitoring.NewMetrics(reg)
	if err != nil {
		return nil, eris.Wrap(err, "init metrics")
	}

	cat := catalog.NewService(st, time.Duration(c.Aggregate.CacheTTLSecs)*time.Second, metrics)
	engine := aggregate.NewEngine(st, cat, metrics, c.Aggregate.ResyncParallel)
	return &app{
		cfg:        c,
		store:      st,
		registry:   reg,
		metrics:    metrics,
		catalog:    cat,
		engine:     engine,
		production: production.NewService(st, cat, engine),
		analytics:  analytics.NewService(st, cat),
		templates:  screenshot.NewTemplates(st),
		names:      screenshot.NewNames(st, cat),
	}, nil
}

// loadApp opens the configured store and wires the services on top.
func loadApp(ctx context.Context) (*app, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, st)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
