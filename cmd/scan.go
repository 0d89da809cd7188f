package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/barrulus/clepho/internal/app"
	"github.com/barrulus/clepho/internal/scanner"
	"github.com/barrulus/clepho/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Scan a directory into the photo catalog",
	Long: `Walk a directory, hash and extract metadata for every image
file found, and upsert the results into the catalog (§4.5).`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().Int("workers", 0, "worker pool size override (0 = config default, which means NumCPU)")
	scanCmd.Flags().Bool("dotfiles", false, "include dotfiles in the walk (config default otherwise)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	dir := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if w := mustGetInt(cmd, "workers"); w > 0 {
		cfg.Scanner.Workers = w
	}
	if mustGetBool(cmd, "dotfiles") {
		cfg.Scanner.IncludeDotfiles = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt, stopping scan...")
		cancel()
	}()

	logger, logFile, err := newLogger()
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Scanning %s...\n", dir)

	var bar *progressbar.ProgressBar
	a.Executor.SetScanProgress(func(ev scanner.ProgressEvent) {
		switch ev.Kind {
		case scanner.EventStarted:
			bar = progressbar.NewOptions(ev.TotalEstimate,
				progressbar.OptionSetDescription("hashing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		case scanner.EventFile:
			if bar != nil {
				bar.Add(1)
			}
		case scanner.EventCompleted, scanner.EventCancelled, scanner.EventAborted:
			if bar != nil {
				bar.Finish()
			}
		}
	})

	if err := a.Executor.Run(ctx, store.ScheduledTask{Kind: store.TaskScan, TargetPath: dir}); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Println("Scan complete.")
	return nil
}
