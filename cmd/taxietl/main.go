// Command taxietl loads NYC TLC yellow taxi trips into a star-schema
// warehouse and exports analysis views as CSV.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Printf("taxietl: %v", err)
		os.Exit(1)
	}
}
