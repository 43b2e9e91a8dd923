package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/hypecut/internal/config"
	"github.com/kikiluvv/hypecut/internal/ffmpeg"
	"github.com/kikiluvv/hypecut/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hypecut",
	Short: "hypecut - highlight detection for music videos",
	Long:  "Scores a music video for audio novelty (and optionally motion), then selects and cuts the most clip-worthy segments.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose)

		// Load config
		cfg, err := config.Load(cmd.Context(), cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./hypecut.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(configCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe [video]",
	Short: "Print media information for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		exe, err := ffmpeg.New(log.Logger, cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
		if err != nil {
			return err
		}

		info, err := exe.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		printMediaInfo(info)
		return nil
	},
}

func printMediaInfo(info *ffmpeg.MediaInfo) {
	fmt.Printf("%-10s %s\n", "file", info.FilePath)
	fmt.Printf("%-10s %.2fs\n", "duration", info.Seconds())
	if info.HasVideo {
		fmt.Printf("%-10s %dx%d @ %g fps (%s)\n", "video", info.Width, info.Height, info.FPS, info.VideoCodec)
	}
	if info.HasAudio {
		fmt.Printf("%-10s %d Hz, %d ch (%s)\n", "audio", info.SampleRate, info.Channels, info.AudioCodec)
	}
	if info.Bitrate > 0 {
		fmt.Printf("%-10s %d kb/s\n", "bitrate", info.Bitrate/1000)
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}
