package ffmpeg

import "time"

// MediaInfo contains metadata about a media file
type MediaInfo struct {
	FilePath     string
	Duration     time.Duration
	Width        int
	Height       int
	FPS          float64
	Bitrate      int64
	HasVideo     bool
	VideoCodec   string
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
	SampleRate   int
	Channels     int
}

// Seconds returns the media duration in seconds
func (m *MediaInfo) Seconds() float64 {
	return m.Duration.Seconds()
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame      int
	FPS        float64
	Bitrate    string
	Time       string
	Speed      string
	Percentage float64
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)

// Default encoding settings for clip export
const (
	DefaultCRF          = 18
	DefaultPreset       = "veryfast"
	DefaultVideoCodec   = "libx264"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "128k"
	DefaultPixelFormat  = "yuv420p"
)
