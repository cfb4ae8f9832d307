package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [src]",
	Short: "Reconcile the document table with a store",
	Long:  "Inserts documents found in the store but missing from the table and removes rows whose file is gone. Defaults to the fs store.",
	Args:  cobra.MaximumNArgs(1),
	Run:   runSync,
}

func runSync(cmd *cobra.Command, args []string) {
	src := "fs"
	if len(args) > 0 {
		src = args[0]
	}

	cfg := mustConfig()
	ctx := context.Background()

	app, err := newApp(ctx, cfg)
	exitOn(err)
	defer app.Close()

	report, err := app.Docs.Sync(ctx, src)
	exitOn(err)

	color.Green("synced %s: %d added, %d removed", src, len(report.Added), len(report.Removed))
	for _, name := range report.Added {
		fmt.Printf("  + %s\n", name)
	}
	for _, name := range report.Removed {
		fmt.Printf("  - %s\n", name)
	}
}
