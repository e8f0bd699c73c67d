package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kuitang/mango3-e2e/internal/config"
	"github.com/kuitang/mango3-e2e/internal/obs"
	"github.com/kuitang/mango3-e2e/internal/site"
)

const shutdownTimeout = 10 * time.Second

// ServeCommand runs the reference application until interrupted.
type ServeCommand struct {
	*Meta

	// ready, when set, receives the running app; used by tests.
	ready chan<- *site.App
	// stop, when set, replaces the interrupt signal; used by tests.
	stop <-chan struct{}
}

func (c *ServeCommand) Synopsis() string {
	return "Run the mango3 reference application"
}

func (c *ServeCommand) Help() string {
	var b strings.Builder
	_, _ = config.ParseFlags([]string{"-h"}, &b)
	return `Usage: mango3-e2e serve [options]

  Serve every origin of the topology (home, accounts, admin, my-account,
  studio, uploads and user websites) from one listener, dispatching on the
  Host header. Point *.BASIC_DOMAIN at the listener, e.g. with
  Chromium's --host-resolver-rules.

Options:
` + b.String()
}

func (c *ServeCommand) Run(args []string) int {
	var usage strings.Builder
	flags, err := config.ParseFlags(args, &usage)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		c.UI.Error(usage.String())
		return 1
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		c.UI.Error(fmt.Sprintf("Configuration error: %v", err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := site.Listen(ctx, cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("Failed to start: %v", err))
		return 1
	}

	var summary strings.Builder
	cfg.PrintStartupSummary(&summary)
	c.UI.Output(summary.String())

	serveErr := make(chan error, 1)
	go func() { serveErr <- app.Serve() }()
	if c.ready != nil {
		c.ready <- app
	}

	stop := c.stop
	if stop == nil {
		sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stopSignals()
		stop = sigCtx.Done()
	}

	select {
	case err := <-serveErr:
		app.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.UI.Error(fmt.Sprintf("Server error: %v", err))
			return 1
		}
		return 0
	case <-stop:
	}

	obs.Pkg("serve").Info("shutting_down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := app.Shutdown(shutdownCtx); err != nil {
		c.UI.Error(fmt.Sprintf("Shutdown error: %v", err))
		return 1
	}
	c.UI.Output("Server stopped")
	return 0
}
