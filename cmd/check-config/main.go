// Command check-config loads the agent configuration and prints the
// effective values, including environment overrides.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/fatih/color"

	"github.com/BGMLAI/exoskull/internal/config"
)

func main() {
	path := flag.String("config", config.DefaultPath(), "configuration file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	color.New(color.FgGreen).Println("Configuration loaded successfully!")
	fmt.Printf("Config File: %s\n", *path)
	fmt.Printf("Data Dir: %s\n", cfg.DataDir)
	fmt.Printf("API Base URL: %s\n", cfg.API.BaseURL)
	fmt.Printf("Identity URL: %s\n", cfg.API.IdentityURL)
	fmt.Printf("Anon Key Set: %v\n", cfg.API.AnonKey != "")
	fmt.Printf("HTTP Timeout: %s\n", cfg.API.Timeout.Duration)
	fmt.Printf("Control API: %v (%s:%d)\n", cfg.Server.Enabled, cfg.Server.BindAddress, cfg.Server.Port)
	fmt.Printf("Log Level: %s\n", cfg.Logging.Level)
	fmt.Printf("Log File: %s (enabled: %v)\n", cfg.LogPath(), cfg.Logging.DebugEnabled)
	fmt.Printf("Crash Log: %s\n", cfg.CrashPath())
	fmt.Printf("Upload Interval: %s, batch %d, max retries %d\n",
		cfg.Uploader.Interval.Duration, cfg.Uploader.BatchSize, cfg.Uploader.MaxRetries)
	fmt.Printf("Max File Size: %d MB\n", cfg.Uploader.MaxFileSizeMB)
	fmt.Printf("Recall Sync: every %s, batch %d, OCR %s\n",
		cfg.Recall.SyncInterval.Duration, cfg.Recall.SyncBatchSize, cfg.Recall.OCR)
	fmt.Printf("Dictation: %d Hz, grace %s\n", cfg.Dictation.SampleRate, cfg.Dictation.Grace.Duration)
}
