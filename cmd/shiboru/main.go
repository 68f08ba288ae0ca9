// Package main is the shiboru shard server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shiboru/internal/config"
	"github.com/hyperjump/shiboru/internal/scroll"
	"github.com/hyperjump/shiboru/internal/search"
	"github.com/hyperjump/shiboru/internal/server"
	"github.com/hyperjump/shiboru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/shiboru/config.yaml"

// loadConfig loads config from path. When path is the default, it first
// looks for config.yaml in the current directory (for development); if that
// exists it is used instead.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				return config.Load(fallback)
			}
		}
	}
	return config.Load(path)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "version", "--version", "-v":
		fmt.Printf("shiboru version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	sessions, err := scroll.NewStore(cfg.Storage.ScrollDBPath)
	if err != nil {
		logger.Fatal("failed to open scroll store", zap.Error(err))
	}
	defer sessions.Close()

	executor := search.NewExecutor(logger)
	manager := server.NewIndexManager(cfg.Search.SegmentSize)
	srv := server.NewServer(executor, manager, sessions, cfg, logger)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Info("server stopped", zap.Error(err))
	}
}

func printUsage() {
	fmt.Println(`shiboru - shard query execution server

Usage:
  shiboru server [-config path]   start the HTTP server
  shiboru version                 print version
  shiboru help                    show this help`)
}
