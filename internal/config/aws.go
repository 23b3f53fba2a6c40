package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// AWSConfig is only read when SPEECH_ENGINE=polly. Credentials come from the
// SDK's default chain.
type AWSConfig struct {
	Region      string `env:"AWS_REGION, default=us-east-1"`
	PollyVoice  string `env:"POLLY_VOICE, default=Joanna"`
	PollyNeural bool   `env:"POLLY_NEURAL"`
}

func NewAWSConfigFromEnv() (*AWSConfig, error) {
	var cfg AWSConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
