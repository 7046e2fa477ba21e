package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fosrl/newt/logger"
	"github.com/fosrl/newt/updates"
)

func main() {
	// Create a context that will be cancelled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Init(nil)

	version := "version_replaceme"

	if err := updates.CheckForUpdate("dnschanger", "dnschanger", version); err != nil {
		logger.Debug("Failed to check for updates: %v", err)
	}

	rootCmd := newRootCmd(version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		exitWithError(err)
	}
}
