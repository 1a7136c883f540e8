package main

import (
	"flag"
	"log/slog"
	"os"

	"boothpay/internal/logger"
	"boothpay/internal/validation"
)

func main() {
	var baseURL string
	flag.StringVar(&baseURL, "url", "http://localhost:8081", "Base URL for API validation")
	flag.Parse()

	logger.Init("info", "text")

	if err := validation.NewAPIValidator(baseURL).ValidateAll(); err != nil {
		slog.Error("API validation failed", "error", err)
		os.Exit(1)
	}
}
