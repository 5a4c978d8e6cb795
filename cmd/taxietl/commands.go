package main

import (
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"taxietl/internal/config"
	"taxietl/internal/datasource/httpds"
	"taxietl/internal/tlc"
)

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "reset the warehouse, load zones and batches, build views and export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := a.checkConfig(cfg); err != nil {
				return err
			}

			runID := uuid.NewString()
			start := time.Now()
			log.Printf("taxietl: run_id=%s job=%s storage=%s", runID, cfg.Job, cfg.Storage.Kind)
			defer setupMetrics(cfg, runID)()

			ctx := cmd.Context()
			w, err := openWiring(ctx, cfg)
			if err != nil {
				return err
			}
			defer w.Close()

			sum, err := w.pipeline.Run(ctx)
			if err != nil {
				return err
			}
			log.Printf("taxietl: run_id=%s completed in %s (%s trips in %d batches)",
				runID, time.Since(start).Truncate(time.Millisecond), humanize.Comma(sum.Inserted()), len(sum.Batches))
			return nil
		},
	}
}

func (a *app) validateCommand() *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "check the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := a.checkConfig(cfg); err != nil {
				return err
			}
			if probe {
				if err := probeBatches(cmd, cfg); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.stdout, "configuration is valid")
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "also check that every batch file exists and is parquet")
	return cmd
}

func probeBatches(cmd *cobra.Command, cfg config.Config) error {
	batches, err := cfg.AllBatches()
	if err != nil {
		return err
	}
	src := tlc.NewTripSource(httpds.NewClient(httpConfig(cfg.HTTP)), tripConfig(cfg.Source))
	var failed int
	for _, b := range batches {
		if err := src.Probe(cmd.Context(), b); err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "error: batch %s: %v\n", b, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", src.Location(b))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d batches failed the probe", failed, len(batches))
	}
	return nil
}

func (a *app) resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "drop the warehouse tables and views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := a.checkConfig(cfg); err != nil {
				return err
			}
			w, err := openWiring(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer w.Close()
			return w.pipeline.Reset(cmd.Context())
		},
	}
}

func (a *app) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "export the views of an existing warehouse without reloading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := a.checkConfig(cfg); err != nil {
				return err
			}
			if cfg.Export.Dir == "" {
				return fmt.Errorf("export.dir is not set")
			}
			defer setupMetrics(cfg, uuid.NewString())()

			w, err := openWiring(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer w.Close()

			files, uploaded, err := w.pipeline.ExportViews(cmd.Context())
			for _, f := range files {
				fmt.Fprintf(a.stdout, "%s\t%d rows\txxh3=%s\n", f.Path, f.Rows, f.HashHex())
			}
			for _, loc := range uploaded {
				fmt.Fprintf(a.stdout, "uploaded\t%s\n", loc)
			}
			return err
		},
	}
}
