package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gdaytreva/client"
	"gdaytreva/config"
	"gdaytreva/console"
	"gdaytreva/log"
	"gdaytreva/metrics"
)

func main() {
	args, err := config.ParseCommandLineArgs(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(args.ConfigFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyCommandLineArgs(args)

	logManager, err := log.NewLogManager(cfg.Log.Filename, cfg.Debug)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "log setup error: %v\n", err)
		os.Exit(1)
	}
	defer logManager.Close()

	sessionConfig, err := cfg.SessionConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		fmt.Println("\nSignal received, shutting down...")
		cancel()
	}()

	var opts []client.Option
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector()
		opts = append(opts, client.WithObserver(collector))
		go func() {
			if err := collector.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("Metrics server failed", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
	}

	session := client.NewSession(sessionConfig, opts...)
	if err := session.Start(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "session error: %v\n", err)
		return
	}
	defer session.Stop()
	slog.Info("Session started", "host", sessionConfig.Host)

	if cfg.Console.Enabled {
		console.Run(ctx, session)
		return
	}

	fmt.Printf("Connected to %s, press Ctrl-C to exit\n", sessionConfig.Host)
	<-ctx.Done()
}
