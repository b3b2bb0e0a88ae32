// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/trview/internal/api"
	"github.com/autobrr/trview/internal/buildinfo"
	"github.com/autobrr/trview/internal/config"
	"github.com/autobrr/trview/internal/domain"
	"github.com/autobrr/trview/internal/metrics"
	"github.com/autobrr/trview/internal/torrents"
	"github.com/autobrr/trview/internal/transmission"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "trview",
		Short: "A small web view of the torrents on a Transmission daemon",
		Long: `trview - A self-hosted, read-only web page listing the torrents
known to a single Transmission daemon, sorted and filterable by name.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunCheckCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		logPath   string
		rpcURL    string
		pprofFlag bool
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/trview/ or %APPDATA%\\trview\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().StringVar(&rpcURL, "rpc-url", "", "Transmission RPC endpoint, overrides rpcUrl from the config file")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "enable pprof server on :6060")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, logPath, rpcURL, pprofFlag)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of trview",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/trview/config.toml
- Windows: %APPDATA%\trview\config.toml

You can specify either a directory path or a direct file path:
- Directory: trview generate-config --config-dir /path/to/config/
- File: trview generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				configPath = filepath.Join(config.GetDefaultConfigDir(), "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

// newTransmissionClient builds the daemon client from config. observer may be nil.
func newTransmissionClient(cfg *domain.Config, observer transmission.Observer) (*transmission.Client, error) {
	opts := []transmission.Option{
		transmission.WithTimeout(cfg.RPCTimeoutDuration()),
		transmission.WithUserAgent(buildinfo.UserAgent),
	}
	if cfg.RPCUsername != "" {
		opts = append(opts, transmission.WithCredentials(cfg.RPCUsername, cfg.RPCPassword))
	}
	if observer != nil {
		opts = append(opts, transmission.WithObserver(observer))
	}

	return transmission.NewClient(cfg.RPCURL, opts...)
}

type Application struct {
	configDir string
	logPath   string
	rpcURL    string
	pprofFlag bool
}

func NewApplication(configDir, logPath, rpcURL string, pprofFlag bool) *Application {
	return &Application{
		configDir: configDir,
		logPath:   logPath,
		rpcURL:    rpcURL,
		pprofFlag: pprofFlag,
	}
}

func (app *Application) runServer() {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.logPath != "" {
		os.Setenv("TRVIEW__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}
	if app.rpcURL != "" {
		if err := cfg.SetRPCURL(app.rpcURL); err != nil {
			log.Fatal().Err(err).Msg("Invalid --rpc-url")
		}
	}
	if app.pprofFlag {
		cfg.Config.PprofEnabled = true
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Str("configDir", cfg.GetConfigDir()).Msg("Starting trview")

	var metricsManager *metrics.Manager
	var observer transmission.Observer
	if cfg.Config.MetricsEnabled {
		metricsManager = metrics.NewMetricsManager()
		observer = metricsManager
	}

	client, err := newTransmissionClient(cfg.Config, observer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Transmission client")
	}
	log.Info().Str("rpcUrl", client.Endpoint()).Msg("Using Transmission daemon")

	sessionOpts := []torrents.SessionsOption{
		torrents.WithIdleTimeout(cfg.Config.SessionIdleDuration()),
	}
	if metricsManager != nil {
		sessionOpts = append(sessionOpts, torrents.WithRecorder(metricsManager))
	}
	sessions := torrents.NewSessions(client, sessionOpts...)

	cfg.RegisterReloadListener(func(conf *domain.Config) {
		sessions.SetIdleTimeout(conf.SessionIdleDuration())
	})

	// Report the daemon version once; the server starts either way.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		info, err := client.SessionInfo(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Transmission daemon not reachable yet")
			return
		}
		logEvent := log.Info().Str("daemonVersion", info.Version).Int("rpcVersion", info.RPCVersion)
		if !info.Supported() {
			logEvent = log.Warn().Str("daemonVersion", info.Version).Str("minimum", transmission.MinSupportedVersion.String())
		}
		logEvent.Msg("Connected to Transmission daemon")
	}()

	httpServer := api.NewServer(&api.Dependencies{
		Config:   cfg,
		Version:  buildinfo.Version,
		Daemon:   client,
		Sessions: sessions,
	})

	errorChannel := make(chan error, 2)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	var metricsServer *metrics.Server
	if metricsManager != nil {
		metricsServer = metrics.NewMetricsServer(metricsManager, cfg.Config.MetricsHost, cfg.Config.MetricsPort)

		// Start metrics server on separate port
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errorChannel <- err
			}
		}()
	}

	// Start profiling server if enabled
	if cfg.Config.PprofEnabled {
		go func() {
			log.Info().Msg("Starting pprof server on :6060")
			log.Info().Msg("Access profiling at: http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("Profiling server failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessions.Shutdown()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("got error during metrics server shutdown")
		}
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")
		os.Exit(1)
	}

	log.Info().Msg("Server stopped")
}
