package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/yaoapp/duan/server"
	"github.com/yaoapp/kun/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := mustConfig()
	ctx := context.Background()

	app, err := newApp(ctx, cfg)
	exitOn(err)
	defer app.Close()

	interrupt := make(chan uint8, 1)
	if cfg.Watch {
		go func() {
			if err := app.Docs.Watch(app.fs, interrupt); err != nil {
				log.Error("[Watch] %s: %s", app.fs.ID(), err.Error())
			}
		}()
	}

	if cfg.SyncSchedule != "" {
		scheduler, err := app.Docs.Schedule(cfg.SyncSchedule, app.fs.ID())
		exitOn(err)
		defer scheduler.Stop()
	}

	srv := server.New(app.API.Router(cfg.AllowedOrigins), server.Option{
		Addr:    cfg.Address,
		Timeout: 5 * time.Second,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		if cfg.Watch {
			interrupt <- 1
		}
		if err := srv.Stop(); err != nil {
			log.Error("[Server] stop: %s", err.Error())
		}
	}()

	banner(app)
	exitOn(srv.Start())
}

// banner prints what the service came up with.
func banner(app *App) {
	color.Cyan("duan v%s", version)
	fmt.Printf("document stores  %s\n", strings.Join(app.Stores.IDs(), ", "))
	fmt.Printf("embedders        %s\n", strings.Join(app.Embedders.IDs(), ", "))
	fmt.Printf("vector stores    %s\n", strings.Join(app.Vectors.IDs(), ", "))
	fmt.Printf("listening on     %s\n", app.Config.Address)
}
