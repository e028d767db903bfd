package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/thesyncim/mediacapture/capture"
	"github.com/thesyncim/mediacapture/internal/config"
	"github.com/thesyncim/mediacapture/internal/store"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <url>",
		Short: "Import a media URL as an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				return runImport(cmd, cfg, st, args[0])
			})
		},
	}
}

func runImport(cmd *cobra.Command, cfg *config.Config, st *store.Store, url string) error {
	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	delay := cfg.ImportDelay()
	if delay == 0 {
		delay = -1
	}

	var (
		saved   *store.Record
		saveErr error
	)
	im := &capture.Importer{
		Delay: delay,
		OnImport: func(art *capture.Artifact) {
			saved, saveErr = st.Save(context.WithoutCancel(runCtx), art)
		},
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Importing %s\n", url)
	art, err := im.Import(runCtx, url)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("import: %w", err)
	}
	if art == nil {
		return errors.New("import: url is blank")
	}
	if saveErr != nil {
		return fmt.Errorf("store artifact: %w", saveErr)
	}
	printSaved(cmd, art, saved)
	return nil
}
