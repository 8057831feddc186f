package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dharmatimeline/dharmatimeline/internal/gateway"
	"github.com/dharmatimeline/dharmatimeline/internal/logging"
	"github.com/dharmatimeline/dharmatimeline/internal/observability"
	"github.com/dharmatimeline/dharmatimeline/internal/server"
)

const shutdownGrace = 10 * time.Second

func runServe(args []string) error {
	var common commonFlags
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	common.register(fs)
	addr := fs.String("addr", "", "Listen address (optional, overrides server.addr)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s serve [options]\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nGEMINI_API_KEY enables summaries and narration; it may also come from a .env file.\n")
	}
	fs.Parse(args)

	env, err := common.load()
	if err != nil {
		return err
	}
	if *addr != "" {
		env.cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, env.cfg.Tracing, env.log)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, env.log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	client := gateway.New(env.cfg.Gateway, gateway.WithLogger(env.log), gateway.WithMetrics(metrics))
	if !client.HasKey() {
		env.log.Warn(ctx, "no API key configured; summaries and narration are disabled")
	}
	srv, err := server.New(env.cfg, env.data, client, server.WithLogger(env.log), server.WithMetrics(metrics))
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              env.cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		env.log.Info(gctx, "listening",
			logging.String("addr", httpServer.Addr),
			logging.Int("entities", len(env.data.Entities)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		env.log.Info(shutdownCtx, "shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
