package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SkybridgeApp/Skybridge/internal/bridge"
	"github.com/SkybridgeApp/Skybridge/internal/config"
	"github.com/SkybridgeApp/Skybridge/internal/forward"
	"github.com/SkybridgeApp/Skybridge/internal/logging"
	"github.com/SkybridgeApp/Skybridge/internal/metrics"
	"github.com/SkybridgeApp/Skybridge/internal/passthrough"
	"github.com/SkybridgeApp/Skybridge/internal/singleinstance"
	"github.com/SkybridgeApp/Skybridge/internal/websocket"
)

func main() {
	var (
		configPath  string
		listenAddr  string
		logDir      string
		insecureTLS bool
		insecureSet bool
	)

	rootCmd := &cobra.Command{
		Use:   "skybridge",
		Short: "Backend bridge for the Skybridge desktop app",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Bridge.ListenAddr = listenAddr
			}
			if logDir != "" {
				cfg.Log.Dir = logDir
			}
			if insecureSet {
				cfg.HTTP.InsecureTLS = insecureTLS
			}
			return run(cfg, args)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.Flags().StringVar(&listenAddr, "addr", "", "bridge listen address override")
	rootCmd.Flags().StringVar(&logDir, "log-dir", "", "log directory override")
	rootCmd.Flags().BoolVar(&insecureTLS, "insecure-tls", true, "accept invalid TLS certificates on outbound connections")
	rootCmd.PreRun = func(cmd *cobra.Command, args []string) {
		insecureSet = cmd.Flags().Changed("insecure-tls")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config, args []string) error {
	hub := websocket.NewHub()

	logger, err := logging.New(cfg.Log, hub)
	if err != nil {
		return err
	}
	defer logger.Sync()

	hub.SetLogger(logger)
	go hub.Run()

	if err := os.MkdirAll(filepath.Dir(cfg.Instance.SocketPath), 0o755); err != nil {
		return err
	}

	lock, err := singleinstance.Acquire(cfg.Instance.SocketPath, logger)
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		// Hand our launch over to the primary instance and bow out.
		cwd, _ := os.Getwd()
		return singleinstance.Notify(cfg.Instance.SocketPath, singleinstance.Launch{
			Args: args,
			Cwd:  cwd,
		})
	}
	if err != nil {
		return err
	}

	m := metrics.New()
	forwarder, err := forward.New(forward.Config{
		InsecureTLS:  cfg.HTTP.InsecureTLS,
		MaxRedirects: cfg.HTTP.MaxRedirects,
		Timeout:      time.Duration(cfg.HTTP.Timeout),
	})
	if err != nil {
		return err
	}

	sessions := passthrough.NewManager(cfg.HTTP.InsecureTLS, logger, m.ActiveSessions)
	server := bridge.NewServer(cfg, forwarder, hub, sessions, m, m.Handler(), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return lock.Serve(ctx, func(launch singleinstance.Launch) {
			hub.Broadcast("single-instance", launch)
		})
	})

	group.Go(func() error {
		<-ctx.Done()
		sessions.CloseAll()
		return server.Stop()
	})

	logger.Info("Skybridge started", zap.String("addr", cfg.Bridge.ListenAddr))
	return group.Wait()
}
