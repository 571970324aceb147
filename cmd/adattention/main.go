package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keagan/adattention/internal/config"
	"github.com/keagan/adattention/internal/ffmpeg"
	"github.com/keagan/adattention/internal/logging"
	"github.com/keagan/adattention/internal/metrics"
	"github.com/keagan/adattention/internal/pipeline"
	"github.com/keagan/adattention/internal/report"
	"github.com/keagan/adattention/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	envFile   string
	logFormat string
	verbose   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "adattention",
	Short: "adattention - attention scoring for short video ads",
	Long: "Samples a video ad, scores saliency, motion and optional CLIP relevance per frame, " +
		"fuses them into an attention curve and writes a scorecard, plot and heatmap overlay.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}

		logging.Init(verbose, logFormat)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with ADATTENTION_* overrides")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatConsole, "log format (console|json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	analyzeCmd.Flags().Float64("fps", 0, "frames per second to sample (default from config)")
	analyzeCmd.Flags().StringP("out", "o", "", "output directory (default from config)")
	analyzeCmd.Flags().Bool("relevance", false, "enable the CLIP relevance signal")
	analyzeCmd.Flags().Bool("pacing", false, "enable the pacing signal")
	analyzeCmd.Flags().String("audience", "", "audience preset (see `adattention presets`)")
	analyzeCmd.Flags().String("goal", "", "creative goal: hook, explainer or calm_brand")
	analyzeCmd.Flags().Float64("early-window", 0, "early window in seconds")
	analyzeCmd.Flags().Bool("no-overlay", false, "skip the heatmap overlay video")
	analyzeCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile after the run")
	analyzeCmd.Flags().Bool("json", false, "print the scorecard to stdout")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(synthCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [input video]",
	Short: "Score a video and write its artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		flags := cmd.Flags()

		opts := pipeline.AnalyzeOptions{
			Input:     args[0],
			OutputDir: cfg.OutputDir,
			Relevance: cfg.Relevance.Enabled,
			Pacing:    cfg.Pacing.Enabled,
			Audience:  cfg.Audience,
			Goal:      cfg.Goal,
		}
		if flags.Changed("fps") {
			opts.FPS, _ = flags.GetFloat64("fps")
		}
		if flags.Changed("out") {
			opts.OutputDir, _ = flags.GetString("out")
		}
		if flags.Changed("relevance") {
			opts.Relevance, _ = flags.GetBool("relevance")
		}
		if flags.Changed("pacing") {
			opts.Pacing, _ = flags.GetBool("pacing")
		}
		if flags.Changed("audience") {
			opts.Audience, _ = flags.GetString("audience")
		}
		if flags.Changed("goal") {
			opts.Goal, _ = flags.GetString("goal")
		}
		if flags.Changed("early-window") {
			cfg.Fusion.EarlyWindow, _ = flags.GetFloat64("early-window")
		}
		if flags.Changed("no-overlay") {
			cfg.Render.SkipOverlay, _ = flags.GetBool("no-overlay")
		}

		met := metrics.New()
		pipe, err := newPipeline(cfg, met)
		if err != nil {
			return err
		}
		defer pipe.Close()

		res, err := pipe.Analyze(cmd.Context(), opts)
		if path, _ := flags.GetString("metrics-file"); path != "" {
			if werr := met.WriteTextfile(path); werr != nil {
				log.Warn().Err(werr).Str("path", path).Msg("failed to write metrics")
			}
		}
		if err != nil {
			log.Error().Err(err).Str("input", args[0]).Msg("analysis failed")
			return err
		}

		sc := res.Scorecard
		moments := make([]string, len(sc.KeyMoments))
		for i, t := range sc.KeyMoments {
			moments[i] = util.FormatSeconds(t)
		}
		event := log.Info().
			Float64("overall", sc.OverallScore).
			Float64("first_window", sc.FirstWindowRetention).
			Strs("key_moments", moments).
			Int("frames", res.Frames)
		if sc.Interpretation != nil {
			event = event.Str("grade", sc.Interpretation.Grade).Str("rating", sc.Interpretation.Rating)
		}
		if res.Artifacts != nil {
			event = event.Str("report", res.Artifacts.Report)
		}
		event.Msg("analysis complete")

		for _, w := range sc.Warnings {
			log.Warn().Msg(w)
		}

		if asJSON, _ := flags.GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sc)
		}
		return nil
	},
}

// newPipeline wires the ffmpeg decoder and encoder into a pipeline
func newPipeline(cfg *config.Config, met *metrics.Metrics) (*pipeline.Pipeline, error) {
	exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpeg.BinaryPath,
		FFprobePath: cfg.FFmpeg.ProbePath,
		Threads:     cfg.FFmpeg.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("ffmpeg unavailable: %w", err)
	}

	return pipeline.New(log.Logger, cfg, pipeline.Deps{
		Decoder: exec.Decoder(),
		Encoder: report.FFmpegEncoder{Exec: exec},
		Metrics: met,
	})
}
