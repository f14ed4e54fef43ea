package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/apindex/internal/config"
	"github.com/dgallion1/apindex/internal/pipeline"
	"github.com/dgallion1/apindex/internal/source"
)

var (
	indexParallel int
	indexSink     string
	indexOutput   string
)

var indexCmd = &cobra.Command{
	Use:   "index MANIFEST...",
	Short: "Index one or more volumes",
	Long: `Index the volumes described by the given manifests.

Manifests and the files they reference may be local paths, file:// URIs or
s3://bucket/key URIs. A volume that fails does not stop the others; the
command exits non-zero if any volume failed.

Examples:
  apindex index vols/76/manifest.yaml
  apindex index --sink jsonl --output - vols/*/manifest.yaml
  apindex index --parallel 4 s3://ap-volumes/76/manifest.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(func(c *config.Config) {
			if cmd.Flags().Changed("sink") {
				c.Sink = indexSink
			}
			if cmd.Flags().Changed("output") {
				c.Output = indexOutput
			}
		})
		if err != nil {
			return err
		}
		log := newLogger(cmd.ErrOrStderr(), cfg, false)

		dest, err := pipeline.OpenDestination(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := dest.Close(); err != nil {
				log.Error("close destination", "error", err)
			}
		}()

		w := pipeline.NewWorker(source.New(source.S3Config(cfg.S3)), dest, log)
		snaps, err := pipeline.IndexAll(ctx, w, args, indexParallel)

		failed := 0
		out := cmd.ErrOrStderr()
		for _, s := range snaps {
			fmt.Fprintf(out, "%-10s %-14s pages=%d sections=%d discarded=%d warnings=%d  %s\n",
				s.Status, s.Druid, s.Progress.Pages, s.Progress.Sections,
				s.Progress.DiscardedPages, s.Progress.Warnings, s.Manifest)
			for _, e := range s.Progress.Errors {
				fmt.Fprintf(out, "           error: %s\n", e)
			}
			if s.Status == pipeline.StatusFailed {
				failed++
			}
		}
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d volumes failed", failed, len(snaps))
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().IntVarP(&indexParallel, "parallel", "p", 1, "volumes to index concurrently")
	indexCmd.Flags().StringVar(&indexSink, "sink", "", "record destination: index, store, jsonl or memory (default from config)")
	indexCmd.Flags().StringVarP(&indexOutput, "output", "o", "", "jsonl output file, - for stdout (default from config)")
}
