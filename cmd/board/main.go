// Package main is the board command-line client. It talks to the board
// backend through the shared dispatcher, or runs the in-memory stub
// backend with --stub.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nghyane/board-client/internal/client"
	"github.com/nghyane/board-client/internal/cmd"
	"github.com/nghyane/board-client/internal/config"
	"github.com/nghyane/board-client/internal/errmsg"
	log "github.com/nghyane/board-client/internal/logging"
	"github.com/nghyane/board-client/internal/stubserver"
	flag "github.com/spf13/pflag"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	log.SetupBaseLogger()
}

func main() {
	var configPath string
	var envFile string
	var serverURL string
	var timeout time.Duration
	var debug bool
	var openBrowser bool
	var runStub bool
	var stubAddr string
	var initConfig bool
	var showVersion bool

	flag.StringVar(&configPath, "config", defaultConfigPath(), "Configure File Path")
	flag.StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the config")
	flag.StringVar(&serverURL, "server", "", "Backend base URL, overrides server-url")
	flag.DurationVar(&timeout, "timeout", 0, "Per-call timeout, overrides timeout")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&openBrowser, "open", false, "Open created pages in the browser")
	flag.BoolVar(&runStub, "stub", false, "Run the in-memory stub backend")
	flag.StringVar(&stubAddr, "stub-addr", "", "Listen address for --stub")
	flag.BoolVar(&initConfig, "init", false, "Write a default config file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.CommandLine.SetInterspersed(false)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: board [flags] COMMAND [ARGS...]\n\nflags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n%s\n", "run `board help` for the command list")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("board Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)
		return
	}
	if initConfig {
		doInitConfig(configPath)
		return
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		log.WithError(err).Warn("dotenv not loaded")
	}
	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if timeout > 0 {
		cfg.Timeout = config.Duration(timeout)
	}
	if stubAddr != "" {
		cfg.Stub.Addr = stubAddr
	}
	if err = cfg.Normalize(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if debug || cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if err = log.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}
	defer log.CloseLogOutputs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runStub {
		if err = serveStub(ctx, cfg); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	runner, err := cmd.NewRunner(cfg, cmd.Options{
		OpenBrowser: openBrowser,
		Display: client.ErrorDisplayFunc(func(msg string) {
			fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		}),
	})
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}
	if err = runner.Run(ctx, flag.Args()); err != nil {
		// Dispatcher failures were already shown by the display hook.
		if _, ok := client.AsError(err); !ok {
			fmt.Fprintf(os.Stderr, "error: %s\n", errmsg.Normalize(err))
		}
		stop()
		log.CloseLogOutputs()
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	dir := config.SessionDir()
	if dir == "" {
		return "config.yaml"
	}
	return filepath.Join(dir, "config.yaml")
}

func doInitConfig(configPath string) {
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(configPath, config.GenerateDefaultConfigYAML(), 0o600); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	fmt.Printf("Created: %s\n", configPath)
}

// serveStub runs the stub backend until ctx is done. A demo account is
// seeded so the client can log in straight away.
func serveStub(ctx context.Context, cfg *config.Config) error {
	demo := stubserver.User{Username: "demo", Email: "demo@example.com", Password: "password123"}
	stub := stubserver.New(
		stubserver.WithCSRFCookie(cfg.Stub.CSRFCookie),
		stubserver.WithUser(demo),
	)
	log.WithField("email", demo.Email).Info("stub demo account ready")

	errCh := make(chan error, 1)
	go func() {
		errCh <- stub.Start(cfg.Stub.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stub.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Info("stub backend stopped")
	return nil
}
