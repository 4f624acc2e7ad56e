package application

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/rivo/tview"

	"github.com/rocketscienceinc/tictactoe-sync/internal/config"
	"github.com/rocketscienceinc/tictactoe-sync/internal/syncclient"
	"github.com/rocketscienceinc/tictactoe-sync/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-sync/internal/ui"
)

const unreachableBanner = "Server unreachable. Press r to try again."

// RunClient - runs the terminal client against the server in conf.Client.
func RunClient(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "client")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := syncclient.New(logger, conf.Client.ServerURL, conf.Client.RequestTimeout)
	if err != nil {
		return fmt.Errorf("could not create sync client: %w", err)
	}

	app := tview.NewApplication()
	view := ui.NewBoardView(app)
	controller := tictactoe.NewGameController(logger, client, view,
		tictactoe.WithResyncRetries(conf.Client.ResyncRetries))

	view.Bind(
		func(index int) {
			outcome, err := controller.SelectCell(ctx, index)
			if err != nil {
				log.Warn("move was reverted", "index", index, "error", err)
				return
			}
			log.Debug("cell selected", "index", index, "outcome", outcome.String())
		},
		func() {
			if err := controller.Reset(ctx); err != nil {
				view.RenderStatus(unreachableBanner)
			}
		},
	)

	go func() {
		if err := controller.Load(ctx); err != nil {
			view.RenderStatus(unreachableBanner)
		}
	}()

	go func() {
		<-ctx.Done()
		app.Stop()
	}()

	log.Info("Starting terminal client", "server", conf.Client.ServerURL)

	if err = app.SetRoot(view.Root(), true).Run(); err != nil {
		return fmt.Errorf("terminal ui failed: %w", err)
	}

	return nil
}
