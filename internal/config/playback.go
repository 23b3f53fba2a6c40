package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	SpeechEngineEspeak = "espeak"
	SpeechEnginePolly  = "polly"
)

type PlaybackConfig struct {
	// IdleGrace is how long the bot stays in a channel with nothing queued,
	// and how long it waits before leaving a channel with only bots in it.
	IdleGrace time.Duration `env:"PLAYBACK_IDLE_GRACE, default=3s"`

	MaxDownloadBytes int64  `env:"PLAYBACK_MAX_DOWNLOAD_BYTES, default=26214400"`
	TempDir          string `env:"PLAYBACK_TEMP_DIR"`

	FFmpegPath    string `env:"FFMPEG_PATH, default=ffmpeg"`
	EspeakPath    string `env:"ESPEAK_PATH, default=espeak"`
	YoutubeDLPath string `env:"YOUTUBE_DL_PATH, default=youtube-dl"`

	SpeechEngine string `env:"SPEECH_ENGINE, default=espeak"`
}

func NewPlaybackConfigFromEnv() (*PlaybackConfig, error) {
	var cfg PlaybackConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *PlaybackConfig) validate() error {
	switch c.SpeechEngine {
	case SpeechEngineEspeak, SpeechEnginePolly:
	default:
		return fmt.Errorf("unknown SPEECH_ENGINE %q", c.SpeechEngine)
	}
	if c.MaxDownloadBytes <= 0 {
		return fmt.Errorf("PLAYBACK_MAX_DOWNLOAD_BYTES must be positive, got %d", c.MaxDownloadBytes)
	}
	return nil
}
