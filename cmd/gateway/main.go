// Package main is the gateway process entrypoint: load config + routes,
// build the Gateway, start the listener(s) (plain + optional TLS + optional
// HTTP->HTTPS redirect), optionally hand the listening socket to a Cluster
// Supervisor's worker pool, and shut everything down gracefully on
// SIGINT/SIGTERM.
//
// Grounded on cmd/server/main.go's composition-root shape (config.Load ->
// logger -> dependencies -> router -> http.Server -> goroutine
// ListenAndServe -> signal-driven graceful shutdown via
// internal/app.GracefulShutdown's signal.Notify(SIGINT, SIGTERM) pattern),
// trimmed to this module's scope: no GraphQL/gRPC/Postgres/Redis wiring,
// since the gateway core owns none of those.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iruldev/gatewaycore/internal/admin"
	"github.com/iruldev/gatewaycore/internal/clock"
	"github.com/iruldev/gatewaycore/internal/cluster"
	"github.com/iruldev/gatewaycore/internal/config"
	"github.com/iruldev/gatewaycore/internal/gateway"
	"github.com/iruldev/gatewaycore/internal/observability"
	"github.com/iruldev/gatewaycore/internal/routespec"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	zapLogger, err := observability.NewLogger(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	zapLogger.Info("starting gatewaycore", zap.String("config", cfg.Redacted()))

	isWorker := os.Getenv(cluster.EnvWorkerFlag) != ""

	if cfg.ClusterEnabled && !isWorker {
		runSupervisor(cfg, zapLogger)
		return
	}

	runServer(cfg, zapLogger, isWorker)
}

// runSupervisor is the cluster master: it owns the shared listening socket
// and spawns/monitors N worker processes that each run runServer against
// the inherited fd (spec §4.8).
func runSupervisor(cfg *config.Config, log *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal("listen failed", zap.String("addr", addr), zap.Error(err))
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		log.Fatal("cluster mode requires a TCP listener")
	}
	lnFile, err := tcpLn.File()
	if err != nil {
		log.Fatal("failed to extract listener fd for worker inheritance", zap.Error(err))
	}
	// The Go-level listener is no longer needed by the master: File() dup'd
	// the fd, so lnFile stays valid for every spawned worker's ExtraFiles.
	_ = ln.Close()

	workers := cfg.ClusterWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	supCfg := cluster.DefaultConfig(workers)
	supCfg.Workers = workers
	supCfg.RespawnThreshold = cfg.ClusterRespawnThreshold
	supCfg.RespawnThresholdWindow = time.Duration(cfg.ClusterRespawnWindowMs) * time.Millisecond
	supCfg.MaxRestarts = cfg.ClusterMaxRestarts
	supCfg.ShutdownTimeout = time.Duration(cfg.ClusterShutdownMs) * time.Millisecond
	supCfg.SettleDelay = time.Duration(cfg.ClusterSettleMs) * time.Millisecond

	sup := cluster.New(supCfg, cluster.ExecSpawner{}, clock.New(), log, os.Environ(), []*os.File{lnFile})
	if err := sup.Start(); err != nil {
		log.Fatal("cluster start failed", zap.Error(err))
	}
	log.Info("cluster supervisor started", zap.Int("workers", workers))

	sig := waitForSignal()
	log.Info("cluster supervisor received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceMs)*time.Millisecond)
	defer cancel()
	if err := sup.Shutdown(ctx); err != nil {
		log.Error("cluster shutdown error", zap.Error(err))
	}
}

// runServer builds and serves one gateway instance: the single-process
// case, or one cluster worker operating on its inherited listener fd.
func runServer(cfg *config.Config, log *zap.Logger, isWorker bool) {
	routesFile, err := routespec.Load(cfg.RoutesFile)
	if err != nil {
		log.Fatal("routes load failed", zap.String("file", cfg.RoutesFile), zap.Error(err))
	}

	clk := clock.New()
	gw, err := gateway.Build(cfg, routesFile, log, clk)
	if err != nil {
		log.Fatal("gateway build failed", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/", gw)
	mux.HandleFunc(cfg.HealthPath, healthHandler)
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.Handle(cfg.AdminPath+"/pools", admin.NewHandler(gw.AdminSource()))

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.WriteTimeoutMs) * time.Millisecond,
		IdleTimeout:  time.Duration(cfg.IdleTimeoutMs) * time.Millisecond,
	}

	listener, err := acquireListener(cfg, isWorker)
	if err != nil {
		log.Fatal("listener acquisition failed", zap.Error(err))
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if cfg.TLSEnabled {
			serveErrCh <- server.ServeTLS(listener, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			serveErrCh <- server.Serve(listener)
		}
	}()
	log.Info("gateway listening", zap.String("addr", listener.Addr().String()), zap.Bool("tls", cfg.TLSEnabled), zap.Int("workerId", workerIDOrZero()))

	var redirectServer *http.Server
	if cfg.TLSEnabled && cfg.TLSRedirectPort > 0 {
		redirectServer = startRedirectServer(cfg, log)
	}

	select {
	case sig := <-waitForSignalCh():
		log.Info("gateway received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceMs)*time.Millisecond)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("http shutdown error", zap.Error(err))
	}
	if redirectServer != nil {
		_ = redirectServer.Shutdown(ctx)
	}
	gw.Shutdown()
	log.Info("gateway shutdown complete")
}

// acquireListener opens a fresh TCP listener, or adopts the fd inherited
// from the Cluster Supervisor's ExtraFiles[0] when running as a worker
// (spec §4.8 fd-inheritance, fd 3 being the first file past stdin/stdout/
// stderr).
func acquireListener(cfg *config.Config, isWorker bool) (net.Listener, error) {
	if isWorker {
		f := os.NewFile(3, "gateway-listener")
		return net.FileListener(f)
	}
	return net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port))
}

func workerIDOrZero() int {
	id := os.Getenv(cluster.EnvWorkerID)
	if id == "" {
		return 0
	}
	var n int
	_, _ = fmt.Sscanf(id, "%d", &n)
	return n
}

// startRedirectServer binds cfg.TLSRedirectPort and issues 301s to the
// HTTPS equivalent of the original path/query (spec §6: "a Location whose
// port is omitted iff the HTTPS port is 443").
func startRedirectServer(cfg *config.Config, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Hostname, cfg.TLSRedirectPort),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := r.Host
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}
			target := "https://" + host
			if cfg.Port != 443 {
				target += fmt.Sprintf(":%d", cfg.Port)
			}
			target += r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		}),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("tls redirect server error", zap.Error(err))
		}
	}()
	return srv
}

// healthHandler is the gateway's own liveness probe (spec §6: "separate
// from upstream health probes").
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func waitForSignal() os.Signal {
	return <-waitForSignalCh()
}

func waitForSignalCh() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch
}
