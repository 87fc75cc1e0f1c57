package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/livefeed/internal/core/domain"
	"github.com/vietddude/livefeed/internal/engine"
)

// Minimal wiring example: run the engine against one endpoint with all
// defaults and print what it emits. The full service lives in cmd/livefeed.
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	FEED_URL := os.Getenv("FEED_URL")
	if FEED_URL == "" {
		log.Fatalf("FEED_URL is not set")
	}

	stylelog.InitDefault()

	eng := engine.New(engine.Config{}, engine.Options{})

	eng.OnModeChange(func(ev domain.ModeChangeEvent) {
		fmt.Printf("mode %s -> %s (%s)\n", ev.From, ev.To, ev.Reason)
	})
	eng.OnError(func(ce *domain.ClassifiedError) {
		fmt.Printf("error [%s/%s] %s\n", ce.Category, ce.Severity, ce.Error())
		for _, a := range ce.RecoveryActions {
			fmt.Printf("  recovery: %s\n", a.Label)
		}
	})
	eng.OnData(func(payload []byte) {
		fmt.Printf("data %d bytes\n", len(payload))
	})

	eng.Start(FEED_URL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	eng.Stop()
	fmt.Println("stopped")
}
