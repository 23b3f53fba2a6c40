// Package speech turns text into audio for the say command.
package speech

import (
	"context"
	"errors"
)

// Request is one piece of text to speak.
type Request struct {
	Text string
	// Voice is engine specific; empty uses the engine default.
	Voice string
	// Speed is in words per minute; zero uses the engine default.
	Speed int
}

// Engine synthesizes speech. The returned audio is in any container ffmpeg
// can read.
type Engine interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// ErrEmptyText is returned for requests with nothing to say.
var ErrEmptyText = errors.New("nothing to say")

const (
	SpeedSlow = 90
	SpeedFast = 200

	// defaultSpeed is espeak's own default rate.
	defaultSpeed = 175
)
