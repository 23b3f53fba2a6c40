package speech

import (
	"context"
	"strconv"
	"strings"

	"github.com/glizzus/needsmorejpeg/internal/process"
)

// Espeak synthesizes WAV audio with the espeak binary.
type Espeak struct {
	Path string
}

var _ Engine = (*Espeak)(nil)

func (e *Espeak) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	path := e.Path
	if path == "" {
		path = "espeak"
	}
	return process.Run(ctx, path, EspeakArgs(req), strings.NewReader(req.Text))
}

// EspeakArgs builds the command line for req. The text itself goes to stdin.
func EspeakArgs(req Request) []string {
	args := []string{"--stdout"}
	if req.Speed > 0 {
		args = append(args, "-s", strconv.Itoa(req.Speed))
	}
	if req.Voice != "" {
		args = append(args, "-v", req.Voice)
	}
	return args
}
