package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/secaudit/secaudit-go/internal/config"
	"github.com/secaudit/secaudit-go/internal/repository"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "config file path")
	flag.Parse()

	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger := config.InitLogger(&cfg.Log)

	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		log.Fatal(err)
	}

	// 迁移报告表
	if err := repository.AutoMigrate(db, logger); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	fmt.Printf("✓ Migration completed successfully (%s)\n", cfg.Database.Type)
}
