package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// envPrefix namespaces all environment overrides (e.g. HYPECUT_CLIPS).
const envPrefix = "HYPECUT_"

// ErrInvalid marks configuration rejected before any analysis stage runs.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Tuning   TuningConfig   `yaml:"tuning"`
	Export   ExportConfig   `yaml:"export"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
}

// AnalysisConfig carries the user-facing selection knobs. The json tags
// shape the config block of exported result documents.
type AnalysisConfig struct {
	Clips       int       `yaml:"clips" json:"clips" env:"CLIPS, overwrite" validate:"min=1,max=50"`
	MinLen      float64   `yaml:"min_len" json:"min_len" env:"MIN_LEN, overwrite" validate:"gt=0"`
	MaxLen      float64   `yaml:"max_len" json:"max_len" env:"MAX_LEN, overwrite" validate:"gtfield=MinLen"`
	PreRoll     float64   `yaml:"pre_roll" json:"pre_roll" env:"PRE_ROLL, overwrite" validate:"gte=0"`
	PeakSpacing int       `yaml:"peak_spacing" json:"peak_spacing" env:"PEAK_SPACING, overwrite" validate:"gt=0"`
	WithMotion  bool      `yaml:"with_motion" json:"with_motion" env:"WITH_MOTION, overwrite"`
	AlignToBeat bool      `yaml:"align_to_beat" json:"align_to_beat" env:"ALIGN_TO_BEAT, overwrite"`
	Seeds       []float64 `yaml:"seeds" json:"seeds,omitempty" validate:"dive,gte=0"`
}

// TuningConfig carries the numeric policy defaults of the scoring engine.
// These are deliberate policy choices, not hard laws; tests and callers may
// override them per run.
type TuningConfig struct {
	SampleRate     int     `yaml:"sample_rate" env:"SAMPLE_RATE, overwrite" validate:"gt=0"`
	HopSize        int     `yaml:"hop_size" env:"HOP_SIZE, overwrite" validate:"gt=0"`
	WindowSize     int     `yaml:"window_size" env:"WINDOW_SIZE, overwrite" validate:"gt=0"`
	SmoothWindow   float64 `yaml:"smooth_window" env:"SMOOTH_WINDOW, overwrite" validate:"gt=0"`
	OnsetWeight    float64 `yaml:"onset_weight" env:"ONSET_WEIGHT, overwrite" validate:"gte=0"`
	ContrastWeight float64 `yaml:"contrast_weight" env:"CONTRAST_WEIGHT, overwrite" validate:"gte=0"`
	AudioWeight    float64 `yaml:"audio_weight" env:"AUDIO_WEIGHT, overwrite" validate:"gte=0"`
	MotionWeight   float64 `yaml:"motion_weight" env:"MOTION_WEIGHT, overwrite" validate:"gte=0"`
	PercentileLow  float64 `yaml:"percentile_low" env:"PERCENTILE_LOW, overwrite" validate:"gte=0,lte=100"`
	PercentileHigh float64 `yaml:"percentile_high" env:"PERCENTILE_HIGH, overwrite" validate:"gte=0,lte=100,gtfield=PercentileLow"`
	BeatConfidence float64 `yaml:"beat_confidence" env:"BEAT_CONFIDENCE, overwrite" validate:"gte=0,lte=1"`
	SeedWindow     float64 `yaml:"seed_window" env:"SEED_WINDOW, overwrite" validate:"gt=0"`
	MotionFPS      float64 `yaml:"motion_fps" env:"MOTION_FPS, overwrite" validate:"gt=0"`
	MotionMaxWidth int     `yaml:"motion_max_width" env:"MOTION_MAX_WIDTH, overwrite" validate:"gt=0"`
}

// ExportConfig controls result and clip output
type ExportConfig struct {
	JSONPath     string `yaml:"json_path" env:"JSON_PATH, overwrite"`
	CSVPath      string `yaml:"csv_path" env:"CSV_PATH, overwrite"`
	ClipDir      string `yaml:"clip_dir" env:"CLIP_DIR, overwrite"`
	Format       string `yaml:"format" env:"FORMAT, overwrite" validate:"oneof=original vertical square"`
	CRF          int    `yaml:"crf" env:"CRF, overwrite" validate:"min=0,max=51"`
	Preset       string `yaml:"preset" env:"PRESET, overwrite"`
	AudioBitrate string `yaml:"audio_bitrate" env:"AUDIO_BITRATE, overwrite"`
}

// FFmpegConfig locates the external binaries
type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" env:"FFMPEG_PATH, overwrite"`
	ProbePath  string `yaml:"probe_path" env:"FFPROBE_PATH, overwrite"`
}

// Load reads configuration from defaults, then file, then environment
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(envPrefix, envconfig.OsLookuper()),
	})
	if err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	return cfg, nil
}

// Validate rejects inconsistent configuration before any stage runs
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: field %s fails %q", ErrInvalid, f.Namespace(), f.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if c.Tuning.OnsetWeight+c.Tuning.ContrastWeight <= 0 {
		return fmt.Errorf("%w: novelty weights sum to zero", ErrInvalid)
	}
	if c.Tuning.AudioWeight+c.Tuning.MotionWeight <= 0 {
		return fmt.Errorf("%w: fusion weights sum to zero", ErrInvalid)
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Clips:       6,
			MinLen:      15,
			MaxLen:      30,
			PreRoll:     10,
			PeakSpacing: 80,
		},
		Tuning: TuningConfig{
			SampleRate:     22050,
			HopSize:        512,
			WindowSize:     2048,
			SmoothWindow:   0.5,
			OnsetWeight:    0.7,
			ContrastWeight: 0.3,
			AudioWeight:    0.6,
			MotionWeight:   0.4,
			PercentileLow:  5,
			PercentileHigh: 95,
			BeatConfidence: 0.3,
			SeedWindow:     20,
			MotionFPS:      4,
			MotionMaxWidth: 320,
		},
		Export: ExportConfig{
			JSONPath:     "data/highlights.json",
			CSVPath:      "data/highlights.csv",
			ClipDir:      "clips",
			Format:       "original",
			CRF:          18,
			Preset:       "veryfast",
			AudioBitrate: "128k",
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
		},
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

func findConfigFile() string {
	candidates := []string{
		"./hypecut.yaml",
		"./hypecut.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "hypecut", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
