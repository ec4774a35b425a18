package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/dlnacast/control"
	"github.com/zsiec/dlnacast/renderer"
	"github.com/zsiec/dlnacast/server"
	"github.com/zsiec/dlnacast/session"
	"github.com/zsiec/dlnacast/upnp"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	apiAddr := envOr("API_ADDR", ":7070")
	monitorAddr := envOr("MONITOR_ADDR", ":3221")
	ifaceName := envOr("IFACE", "")

	hostIP, err := server.HostIPv4(ifaceName)
	if err != nil {
		slog.Error("no usable network interface", "error", err)
		os.Exit(1)
	}

	apiPort, err := portOf(apiAddr)
	if err != nil {
		slog.Error("bad API_ADDR", "addr", apiAddr, "error", err)
		os.Exit(1)
	}
	baseURL := fmt.Sprintf("http://%s:%s", hostIP, apiPort)

	slog.Info("dlnacast starting",
		"version", version,
		"host_ip", hostIP,
		"api", apiAddr,
		"monitor", monitorAddr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	registry := renderer.NewRegistry(nil)
	subscriber := upnp.NewSubscriber(registry, baseURL+"/events", nil)
	monitor := upnp.NewMonitor(registry, subscriber, nil)
	controller := control.NewController(registry, monitor.Rescan, nil)
	dispatcher := control.NewDispatcher(controller, nil)
	mgr := session.NewManager(dispatcher, baseURL, nil)
	srv := server.New(mgr, registry, dispatcher, subscriber, nil)

	// Discovery primes availability directly, so a play can be accepted
	// before any client has asked for the renderer list.
	monitor.OnAdded = func(udn string) {
		mgr.MarkAvailable(udn)
		controller.RendererAdded(udn)
	}
	monitor.OnRemoved = mgr.MarkGone

	monitorLn, err := net.Listen("tcp", monitorAddr)
	if err != nil {
		slog.Error("monitor listen failed", "addr", monitorAddr, "error", err)
		os.Exit(1)
	}

	apiSrv := &http.Server{
		Addr:    apiAddr,
		Handler: srv,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	g.Go(func() error {
		return monitor.Start(ctx)
	})

	g.Go(func() error {
		return server.NewStatusMonitor(mgr, nil).Serve(ctx, monitorLn)
	})

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", apiAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return apiSrv.Shutdown(shutdownCtx)
	})

	// Prime the registry so the first /dmrs answers from a warm scan.
	dispatcher.Enqueue(control.Command{Kind: control.KindScan})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func portOf(addr string) (string, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	return port, nil
}
