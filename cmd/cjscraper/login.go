package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func loginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the browser session for later runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Browser.StorageStatePath == "" {
				return fmt.Errorf("browser.storage_state_path is not set")
			}

			b, err := openBrowser()
			if err != nil {
				return err
			}
			defer b.Close()

			gate, solver := newGate()
			defer solver.Close()

			page, err := b.NewPage()
			if err != nil {
				return err
			}
			defer page.Close()

			if err := gate.Login(cmd.Context(), page); err != nil {
				return fmt.Errorf("failed to log in: %w", err)
			}
			if err := b.SaveStorageState(cfg.Browser.StorageStatePath); err != nil {
				return err
			}

			logger.Info("session saved", "path", cfg.Browser.StorageStatePath)
			return nil
		},
	}
}
