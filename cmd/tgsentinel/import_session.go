package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/lifecycle"
)

var importSessionFile string
var importSessionQR string

var importSessionCmd = &cobra.Command{
	Use:   "import-session",
	Short: "Import an exported platform session file and advance the session generation",
	RunE:  runImportSession,
}

func init() {
	importSessionCmd.Flags().StringVar(&importSessionFile, "file", "", "path to the exported session file")
	importSessionCmd.Flags().StringVar(&importSessionQR, "qr-out", "", "optional path to write a fingerprint QR PNG for operator confirmation")
	importSessionCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importSessionCmd)
}

func runImportSession(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfgStore, err := config.NewStore(configPath)
	if err != nil {
		return err
	}
	cfg := cfgStore.Current()

	coordStore := newCoordStore(cfg)
	controller := lifecycle.New(cfg, coordStore, newSessionClientFunc())

	identity, err := controller.ImportSession(ctx, importSessionFile)
	if err != nil {
		return fmt.Errorf("import session: %w", err)
	}
	fmt.Printf("imported session for %s (id=%d, generation=%d)\n", identity.Username, identity.ID, controller.Generation())

	if importSessionQR != "" {
		png, err := lifecycle.FingerprintQR(identity)
		if err != nil {
			return err
		}
		if err := os.WriteFile(importSessionQR, png, 0o600); err != nil {
			return fmt.Errorf("write fingerprint qr: %w", err)
		}
		fmt.Printf("wrote fingerprint qr to %s\n", importSessionQR)
	}

	return nil
}
