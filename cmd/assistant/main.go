package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	assistantcmd "github.com/louisbranch/taskweave/internal/cmd/assistant"
)

// main starts the assistant HTTP gateway.
func main() {
	cfg, err := assistantcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[assistant] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := assistantcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve assistant: %v", err)
	}
}
