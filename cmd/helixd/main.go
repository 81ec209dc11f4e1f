// Command helixd is the helix module-host daemon: it initializes the
// supervisor against a modules directory, serves the control socket,
// and drives a clean shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helix-host/helix/adapter"
	"github.com/helix-host/helix/internal/ctl"
	"github.com/helix-host/helix/internal/hlog"
	"github.com/helix-host/helix/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	modulesDir := flag.String("modules-dir", envOr("HELIX_MODULES_DIR", "/var/lib/helix/modules"), "modules directory")
	socketPath := flag.String("socket", envOr("HELIX_SOCKET", "/run/helix/control.sock"), "control socket path")
	foreground := flag.Bool("foreground", false, "run in the foreground (default; retained for CLI compatibility)")
	interactive := flag.Bool("interactive", false, "accept commands on stdin instead of only the control socket")
	showVersion := flag.Bool("version", false, "print version and exit")
	logLevel := flag.String("log-level", envOr("HELIX_LOG_LEVEL", "info"), "log level: trace, debug, info, warn, error")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics and health checks on this address")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: helixd [flags]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	_ = foreground
	hlog.Default.SetLevel(hlog.ParseLevel(*logLevel))

	if *showVersion {
		fmt.Println(versionString())
		return 0
	}

	promReg := prometheus.NewRegistry()
	sup, err := supervisor.New(supervisor.WithMetrics(promReg))
	if err != nil {
		hlog.Default.Errorf("creating supervisor: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Initialize(ctx, *modulesDir); err != nil {
		hlog.Default.Errorf("initializing: %v", err)
		return 1
	}

	ln, err := ctl.Listen(*socketPath)
	if err != nil {
		hlog.Default.Errorf("listening on control socket: %v", err)
		return 1
	}
	server := ctl.NewServer(sup, ln)

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, promReg, sup)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	if *interactive {
		go runInteractive(ctx, sup)
	}

	select {
	case sig := <-sigCh:
		hlog.Default.Infof("received %s, shutting down", sig)
	case err := <-serveErr:
		if err != nil {
			hlog.Default.Errorf("control server: %v", err)
		}
	}

	cancel()
	if err := sup.Shutdown(context.Background()); err != nil {
		hlog.Default.Errorf("shutdown: %v", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func serveMetrics(addr string, reg *prometheus.Registry, sup *supervisor.Supervisor) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	health := adapter.NewSupervisorHealthAdapter(sup)
	mux.HandleFunc("/live", health.Handler().LiveEndpoint)
	mux.HandleFunc("/ready", health.Handler().ReadyEndpoint)
	hlog.Default.Infof("serving metrics and health on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		hlog.Default.Errorf("metrics server: %v", err)
	}
}
