package main

import (
	"log"
	"os"

	"github.com/nibernar/statistics-service/internal/config"
	pkgconfig "github.com/nibernar/statistics-service/pkg/config"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	// Load environment files explicitly
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	} else if p := os.Getenv("STATISTICS_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		fiberlog.Fatalf("Failed to load config %s: %v", configPath, err)
	}

	server := pkgconfig.NewServer(cfg)

	log.Println("Starting statistics service...")
	if err := server.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
