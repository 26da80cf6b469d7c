package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/mcp"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	initConfig := flag.Bool("init", false, "write a starter .knowledgerrc in the current directory and exit")
	flag.Parse()

	if *initConfig {
		path, err := mcp.WriteSample(".")
		if err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote %s\n", path)
		return
	}

	workDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to determine working directory: %v", err)
	}

	cfg, err := mcp.LoadConfig(workDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Stdout carries the MCP protocol, so the logger must write to stderr.
	logger, err := buildLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting knowledger MCP server",
		zap.String("version", Version),
		zap.String("api_endpoint", cfg.APIEndpoint))

	server := mcp.NewServer("knowledger", Version, cfg, logger)
	if err := server.ServeStdio(); err != nil {
		logger.Fatal("MCP server failed", zap.Error(err))
	}
}

func buildLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
