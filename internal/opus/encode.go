package opus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/jonas747/ogg"
)

// Encoder transcodes audio to Opus frames with ffmpeg.
type Encoder struct {
	// FFmpegPath is the ffmpeg binary. Empty means "ffmpeg" from PATH.
	FFmpegPath string
}

// Encode reads any audio from r and returns length-prefixed Opus frames.
// Closing the returned reader stops ffmpeg.
func (e *Encoder) Encode(ctx context.Context, r io.Reader) (io.ReadCloser, error) {
	cmd := e.command(ctx, "pipe:0")
	cmd.Stdin = r
	return e.start(cmd)
}

// EncodeFile is Encode for a file ffmpeg can open itself.
func (e *Encoder) EncodeFile(ctx context.Context, path string) (io.ReadCloser, error) {
	return e.start(e.command(ctx, path))
}

func (e *Encoder) command(ctx context.Context, input string) *exec.Cmd {
	path := e.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	return exec.CommandContext(ctx, path,
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vn",
		"-map", "0:a",
		"-acodec", "libopus",
		"-f", "ogg",
		"-vbr", "on",
		"-compression_level", "10",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", "64000",
		"-application", "audio",
		"-frame_duration", "20",
		"-packet_loss", "1",
		"-threads", "0",
		"pipe:1",
	)
}

func (e *Encoder) start(cmd *exec.Cmd) (io.ReadCloser, error) {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to pipe ffmpeg output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := repackage(stdout, pw)
		// Drain so ffmpeg is not blocked on a full pipe while we wait.
		_, _ = io.Copy(io.Discard, stdout)
		if werr := cmd.Wait(); werr != nil && err == nil {
			err = fmt.Errorf("ffmpeg failed: %w: %s", werr, bytes.TrimSpace(stderr.Bytes()))
		}
		pw.CloseWithError(err)
	}()

	return &encodeCloser{PipeReader: pr, cmd: cmd, done: done}, nil
}

// repackage turns an ogg/opus stream into length-prefixed frames.
func repackage(r io.Reader, w io.Writer) error {
	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(r))

	// The first two packets are the OpusHead and OpusTags headers.
	headers := 2
	for {
		packet, _, err := decoder.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("failed to decode ogg stream: %w", err)
		}
		if headers > 0 {
			headers--
			continue
		}
		if err := WriteFrame(w, packet); err != nil {
			return err
		}
	}
}

type encodeCloser struct {
	*io.PipeReader
	cmd  *exec.Cmd
	done chan struct{}
}

func (e *encodeCloser) Close() error {
	err := e.PipeReader.Close()
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	<-e.done
	return err
}
