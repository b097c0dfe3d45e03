package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/secaudit/secaudit-go/internal/app"
	"github.com/secaudit/secaudit-go/internal/config"
)

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "config file path")
	flag.Parse()

	// 1. 打印版本信息
	fmt.Printf("SecAudit Platform - Go Version\n")
	fmt.Printf("Version: %s\n", app.Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	// 2. .env 可选
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 3. 初始化日志
	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting SecAudit Platform %s", app.Version)
	logger.Infof("Config loaded from: %s", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
}
