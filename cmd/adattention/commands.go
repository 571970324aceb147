package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/keagan/adattention/internal/audience"
	"github.com/keagan/adattention/internal/config"
	"github.com/keagan/adattention/internal/ffmpeg"
	"github.com/keagan/adattention/internal/frames"
	"github.com/keagan/adattention/internal/logging"
	"github.com/keagan/adattention/internal/metrics"
	"github.com/keagan/adattention/internal/server"
	"github.com/keagan/adattention/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if !cmd.Flags().Changed("log-format") {
			logging.Init(verbose, cfg.Server.LogFormat)
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		if err := util.EnsureDir(cfg.Server.DataDir); err != nil {
			return err
		}

		met := metrics.New()
		pipe, err := newPipeline(cfg, met)
		if err != nil {
			return err
		}
		defer pipe.Close()

		return server.New(log.Logger, cfg, pipe, met).Run(cmd.Context())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List audience presets and their fusion weights",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tSALIENCY\tMOTION\tRELEVANCE\tPACING\tDECAY")
		for _, key := range audience.Keys() {
			p := audience.MustLookup(key)
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f→%.2f\n",
				p.Key, p.Name,
				p.Weights["saliency"], p.Weights["motion"], p.Weights["relevance"], p.Weights["pacing"],
				p.TimeDecay.Start, p.TimeDecay.End)
		}
		return tw.Flush()
	},
}

var synthCmd = &cobra.Command{
	Use:   "synth [output.mp4]",
	Short: "Render a synthetic test clip with a moving object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		flags := cmd.Flags()
		width, _ := flags.GetInt("width")
		height, _ := flags.GetInt("height")
		fps, _ := flags.GetFloat64("fps")
		seconds, _ := flags.GetFloat64("seconds")
		objectUntil, _ := flags.GetFloat64("object-until")

		exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
			FFmpegPath:  cfg.FFmpeg.BinaryPath,
			FFprobePath: cfg.FFmpeg.ProbePath,
			Threads:     cfg.FFmpeg.Threads,
		})
		if err != nil {
			return err
		}

		w, err := exec.EncodeRawVideo(cmd.Context(), ffmpeg.EncodeOptions{
			Output: args[0],
			Width:  width,
			Height: height,
			FPS:    fps,
		})
		if err != nil {
			return err
		}
		clip := frames.MovingObjectClip(width, height, fps, seconds, objectUntil)
		for _, img := range clip {
			if err := w.WriteFrame(img); err != nil {
				w.Abort()
				os.Remove(args[0])
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}

		log.Info().Str("output", args[0]).Int("frames", len(clip)).Msg("synthetic clip written")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")

	synthCmd.Flags().Int("width", 640, "frame width")
	synthCmd.Flags().Int("height", 360, "frame height")
	synthCmd.Flags().Float64("fps", 30, "frame rate")
	synthCmd.Flags().Float64("seconds", 6, "clip length")
	synthCmd.Flags().Float64("object-until", 2, "seconds the object stays on screen, 0 for a static clip")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
