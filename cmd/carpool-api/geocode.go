package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"carpool/internal/config"
	"carpool/internal/maps"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Resolve an address to the \"lat,lon\" form accepted by the API",
	Args:  cobra.MinimumNArgs(1),
	RunE:  geocode,
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}

func geocode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := maps.NewRouteService(cfg.Maps.APIKey)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Maps.Timeout)
	defer cancel()
	p, err := svc.Geocode(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), p.String())
	return nil
}
