// Command checkphone validates phone numbers through a running API's
// validate-phone endpoint, so operators never need the gateway key.
//
//	DAILY_ACCESS_TOKEN=... checkphone +5511999999999 +5521988888888
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/andredfaria/daily/internal/config"
	"github.com/andredfaria/daily/internal/waha"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: checkphone <phone> [phone...]")
		os.Exit(2)
	}
	cfg := config.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	if cfg.PublicBaseURL == "" {
		logger.Fatal("PUBLIC_BASE_URL is required")
	}
	validator := waha.NewProxyValidator(cfg.PublicBaseURL, os.Getenv("DAILY_ACCESS_TOKEN"), cfg.WAHATimeout, logger)

	exit := 0
	encoder := json.NewEncoder(os.Stdout)
	for _, phone := range os.Args[1:] {
		result := validator.Validate(context.Background(), phone)
		if !result.Exists {
			exit = 1
		}
		_ = encoder.Encode(map[string]any{"phone": phone, "result": result})
	}
	os.Exit(exit)
}
