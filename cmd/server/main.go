// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in internal services.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bastion/internal/audit"
	"bastion/internal/backend/local"
	capservice "bastion/internal/capability/service"
	grantstore "bastion/internal/capability/store/grant"
	"bastion/internal/capability/workers/sweeper"
	"bastion/internal/cleanupmgr"
	"bastion/internal/gateway/history"
	gwservice "bastion/internal/gateway/service"
	"bastion/internal/platform/config"
	"bastion/internal/platform/health"
	"bastion/internal/platform/logger"
	"bastion/internal/platform/metrics"
	"bastion/internal/platform/token"
	"bastion/internal/recovery"
	httptransport "bastion/internal/transport/http"
	wfservice "bastion/internal/workflow/service"
	wfstore "bastion/internal/workflow/store/workflow"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	log.Info("initializing bastion",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	pol, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Error("policy configuration rejected", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	auditPub := audit.NewPublisher(audit.NewInMemoryStore(),
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	defer auditPub.Close()

	cleanup := cleanupmgr.New(log)

	issuer, err := capservice.New(grantstore.New(),
		capservice.WithLogger(log),
		capservice.WithAuditPublisher(auditPub),
		capservice.WithMetrics(m),
	)
	if err != nil {
		log.Error("issuer init failed", "error", err)
		os.Exit(1)
	}

	gateway, err := gwservice.New(issuer, local.New(), pol, history.New(),
		gwservice.WithLogger(log),
		gwservice.WithAuditPublisher(auditPub),
		gwservice.WithMetrics(m),
		gwservice.WithCleanupRegistrar(cleanup),
		gwservice.WithCommandTimeout(cfg.CommandTimeout),
	)
	if err != nil {
		log.Error("gateway init failed", "error", err)
		os.Exit(1)
	}

	deployments, err := wfservice.New(wfstore.NewInMemoryStore(), issuer, gateway,
		wfservice.WithLogger(log),
		wfservice.WithAuditPublisher(auditPub),
		wfservice.WithMetrics(m),
		wfservice.WithRecoveryHandler(recovery.NewTriage(gateway, recovery.WithLogger(log))),
		wfservice.WithMaxConcurrent(cfg.MaxConcurrentDeployments),
	)
	if err != nil {
		log.Error("orchestrator init failed", "error", err)
		os.Exit(1)
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	grantSweeper, err := sweeper.New(issuer,
		sweeper.WithInterval(cfg.GrantSweepInterval),
		sweeper.WithLogger(log),
	)
	if err != nil {
		log.Error("sweeper init failed", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := grantSweeper.Start(sweepCtx); err != nil && sweepCtx.Err() == nil {
			log.Error("grant sweeper stopped", "error", err)
		}
	}()

	tokens := token.New(cfg.JWTSigningKey, cfg.OperatorTokenTTL)
	healthHandler := health.New(cfg.Environment)
	handler := httptransport.NewHandler(issuer, gateway, deployments, log)
	router := httptransport.NewRouter(handler, tokens, healthHandler, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	stopSweeper()
	// Reclaim anything callers left behind: containers created through the
	// gateway that were never stopped.
	cleanup.RunAll(ctx)

	log.Info("server stopped")
}
