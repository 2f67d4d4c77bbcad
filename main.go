// Print agent: keeps one WebSocket connection per configured printer to
// the ordering platform, prints incoming jobs as ESC/POS receipts and
// acknowledges every job. Configuration is edited through a local web UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/kardianos/service"

	"github.com/rodrigo1488/agent-service-printer-compuchat/agent"
	"github.com/rodrigo1488/agent-service-printer-compuchat/logger"
	"github.com/rodrigo1488/agent-service-printer-compuchat/metrics"
	"github.com/rodrigo1488/agent-service-printer-compuchat/storage"
	"github.com/rodrigo1488/agent-service-printer-compuchat/web"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config.toml", "Configuration file path")
	generateConfig := flag.Bool("generate-config", false, "Generate default config file and exit")
	serviceCmd := flag.String("service", "", "Service control: install, uninstall, start, stop, run")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Print Agent %s (%s)\n", Version, GitCommit)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return
	}

	if *generateConfig {
		if err := WriteDefaultConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at %s\n", *configPath)
		return
	}

	if *serviceCmd != "" {
		handleServiceCommand(*serviceCmd, *configPath)
		return
	}

	if !service.Interactive() {
		handleServiceCommand("run", *configPath)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	runAgent(ctx, *configPath)
}

// runAgent wires the process together and blocks until ctx is cancelled.
func runAgent(ctx context.Context, configPath string) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.resolvePaths()

	log := logger.New(logger.LevelFromString(cfg.Logging.Level), cfg.Logging.Dir, 500)
	defer log.Close()
	log.Info("Print Agent starting", "version", Version, "config", configPath)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Error("Failed to create data directory", "error", err.Error())
		os.Exit(1)
	}
	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err.Error())
		os.Exit(1)
	}
	defer store.Close()

	collector := metrics.NewCollector()

	supervisor := agent.NewSupervisor(store, log, collector)
	if err := supervisor.Start(); err != nil {
		log.Error("Failed to start connections", "error", err.Error())
	}

	server := web.NewServer(store, supervisor, log, collector)
	webErr := make(chan error, 1)
	go func() {
		webErr <- server.Start(fmt.Sprintf("127.0.0.1:%d", cfg.Web.HTTPPort))
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown requested")
	case err := <-webErr:
		if err != nil {
			log.Error("Web server failed", "error", err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Web server shutdown", "error", err.Error())
	}
	supervisor.Stop()
	log.Info("Print Agent stopped")
}
