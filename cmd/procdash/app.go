package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/loykin/procdash"
	"github.com/loykin/procdash/internal/history"
	"github.com/loykin/procdash/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app wires configuration, logging, metrics and history around one Manager.
type app struct {
	cfg *procdash.Config
	log *slog.Logger
	mgr *procdash.Manager
	reg *prometheus.Registry

	logCloser io.Closer
	sink      *history.SQLSink
	recDone   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// logWriter opens the application log destination.
var logWriter = func(sc logger.SlogConfig, fallback io.Writer) io.Writer { return sc.Writer(fallback) }

// newApp loads the config and builds the supervisor. logOut receives the
// application log unless the config names a log file.
func newApp(ctx context.Context, flags GlobalFlags, logOut io.Writer) (_ *app, err error) {
	c, err := procdash.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if flags.LogLevel != "" {
		c.Log.Level = flags.LogLevel
	}

	a := &app{cfg: c, reg: prometheus.NewRegistry()}
	sc := c.SlogConfig()
	w := logWriter(sc, logOut)
	if cl, ok := w.(io.Closer); ok && w != logOut {
		a.logCloser = cl
	}
	a.log = logger.NewSlogger(sc, w)
	defer func() {
		if err != nil && a.logCloser != nil {
			_ = a.logCloser.Close()
		}
	}()

	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := procdash.RegisterMetrics(a.reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a.mgr, err = procdash.NewFromConfig(c, procdash.WithLogger(a.log))
	if err != nil {
		return nil, err
	}

	if c.History.DSN != "" {
		a.sink, err = history.NewSQLSinkFromDSN(ctx, c.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		events, _ := a.mgr.Subscribe(0)
		a.recDone = make(chan struct{})
		rec := history.NewRecorder(a.log, a.sink)
		go func() {
			defer close(a.recDone)
			rec.Run(context.WithoutCancel(ctx), events)
		}()
	}
	return a, nil
}

// seed adds the configured entries and starts the autostart ones.
func (a *app) seed() {
	if _, err := a.mgr.ApplyConfig(a.cfg.Entries); err != nil {
		a.log.Warn("Some entries failed to autostart", slog.Any("error", err))
	}
}

// close stops every entry, flushes history and metrics, and closes the log file.
func (a *app) close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if err := a.mgr.ShutdownAll(); err != nil {
			errs = append(errs, err)
		}
		// ShutdownAll closed the recorder's subscription.
		if a.recDone != nil {
			<-a.recDone
		}
		if a.sink != nil {
			if err := a.sink.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close history: %w", err))
			}
		}
		if p := a.cfg.Metrics.Textfile; p != "" {
			if err := procdash.WriteMetricsTextfile(p, a.reg); err != nil {
				errs = append(errs, err)
			} else {
				a.log.Debug("metrics textfile written", slog.String("path", p))
			}
		}
		if a.logCloser != nil {
			if err := a.logCloser.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
