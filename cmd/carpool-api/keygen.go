package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carpool/internal/cipher"
	"carpool/internal/config"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the coordinate encryption key file if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if _, err := cipher.LoadOrCreateKey(cfg.Cipher.KeyFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Cipher.KeyFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
