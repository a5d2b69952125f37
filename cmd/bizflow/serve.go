package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/djlord-it/bizflow/internal/api"
	"github.com/djlord-it/bizflow/internal/config"
	"github.com/djlord-it/bizflow/internal/leaderelection"
	"github.com/djlord-it/bizflow/internal/scheduler"
	"github.com/djlord-it/bizflow/internal/transport/channel"
	"github.com/djlord-it/bizflow/internal/trigger"
)

type ServeCmd struct{}

func (ServeCmd) Run() error {
	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		return configError(err)
	}
	logConfigWarnings(&cfg)

	var reg prometheus.Registerer
	if cfg.MetricsEnabled {
		reg = prometheus.DefaultRegisterer
	}

	eng, err := newEngine(context.Background(), cfg, reg)
	if err != nil {
		return runtimeError("failed to start: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Printf("bizflow: close error: %v", err)
		}
	}()

	bus := channel.NewEventBus(cfg.EventBusBufferSize, channel.WithMetrics(eng.metrics))

	apiHandler := api.NewHandler(trigger.NewService(eng.store), eng.store).
		WithIngestor(bus).
		WithHealthChecker(eng.db)
	if cfg.IngestRateLimit > 0 {
		apiHandler = apiHandler.WithIngestLimit(rate.NewLimiter(rate.Limit(cfg.IngestRateLimit), cfg.IngestBurst))
		log.Printf("bizflow: ingestion rate limited (rate=%g/s, burst=%d)", cfg.IngestRateLimit, cfg.IngestBurst)
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		apiHandler = apiHandler.WithCORS(cfg.CORSAllowedOrigins)
		log.Printf("bizflow: cors enabled (origins=%v)", cfg.CORSAllowedOrigins)
	}

	var handler http.Handler = apiHandler
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		if cfg.MetricsPort != "" {
			metricsMux := http.NewServeMux()
			metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
			metricsServer = &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metricsMux}
			go func() {
				log.Printf("bizflow: metrics server listening on :%s%s", cfg.MetricsPort, cfg.MetricsPath)
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("bizflow: metrics server error: %v", err)
				}
			}()
		} else {
			mux := http.NewServeMux()
			mux.Handle(cfg.MetricsPath, promhttp.Handler())
			mux.Handle("/", apiHandler)
			handler = mux
			log.Printf("bizflow: metrics served on %s%s", cfg.HTTPAddr, cfg.MetricsPath)
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
	go func() {
		log.Printf("bizflow: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("bizflow: http server error: %v", err)
		}
	}()

	// Separate contexts for the elector and dispatcher enable ordered shutdown.
	electorCtx, cancelElector := context.WithCancel(context.Background())
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelElector()
	defer cancelDispatcher()

	var electorWg, dispatcherWg sync.WaitGroup

	dispatcherWg.Add(1)
	go func() {
		defer dispatcherWg.Done()
		eng.disp.Run(dispatcherCtx, bus.Channel())
	}()

	if sched := eng.reminders(); sched != nil {
		duty := &reminderDuty{sched: sched}
		elector := leaderelection.New(
			eng.locker,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			duty.start,
			duty.wait,
		).WithMetrics(eng.metrics)

		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(electorCtx)
		}()
	}

	log.Printf("bizflow: started (driver=%s, http=%s, buffer=%d)", cfg.DatabaseDriver, cfg.HTTPAddr, cfg.EventBusBufferSize)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("bizflow: received signal %v, shutting down", received)

	// Phase 1: Stop HTTP server (no new ingested events)
	log.Println("bizflow: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("bizflow: http server shutdown error: %v", err)
	}
	log.Println("bizflow: http server stopped")

	// Phase 2: Stop elector and reminder scheduler (releases the leader lock)
	log.Println("bizflow: stopping leader election...")
	cancelElector()
	electorWg.Wait()
	log.Println("bizflow: leader election stopped")

	// Phase 3: Stop dispatcher (will drain buffered events before returning)
	log.Println("bizflow: stopping dispatcher (draining events)...")
	cancelDispatcher()
	dispatcherWg.Wait()
	eng.disp.Wait()
	log.Println("bizflow: dispatcher stopped")

	// Phase 4: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("bizflow: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("bizflow: metrics server shutdown error: %v", err)
		}
		log.Println("bizflow: metrics server stopped")
	}

	log.Println("bizflow: stopped")
	return nil
}

// reminderDuty runs the reminder scheduler for one leadership term.
type reminderDuty struct {
	sched *scheduler.Scheduler

	mu   sync.Mutex
	done chan struct{}
}

// start blocks until ctx is cancelled; the elector runs it in a goroutine.
func (d *reminderDuty) start(ctx context.Context) {
	done := make(chan struct{})
	d.mu.Lock()
	d.done = done
	d.mu.Unlock()
	defer close(done)

	err := d.sched.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("bizflow: reminder scheduler exited: %v", err)
	}
}

// wait blocks until the current term's scheduler has returned.
func (d *reminderDuty) wait() {
	d.mu.Lock()
	done := d.done
	d.done = nil
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}
