package speech

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/polly"
	"github.com/aws/aws-sdk-go/service/polly/pollyiface"
)

// Polly synthesizes ogg/vorbis audio with Amazon Polly.
type Polly struct {
	client       pollyiface.PollyAPI
	defaultVoice string
	engine       string
}

var _ Engine = (*Polly)(nil)

func NewPolly(client pollyiface.PollyAPI, defaultVoice string, neural bool) *Polly {
	engine := polly.EngineStandard
	if neural {
		engine = polly.EngineNeural
	}
	return &Polly{
		client:       client,
		defaultVoice: defaultVoice,
		engine:       engine,
	}
}

func (p *Polly) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	voice := req.Voice
	if voice == "" {
		voice = p.defaultVoice
	}

	out, err := p.client.SynthesizeSpeechWithContext(ctx, &polly.SynthesizeSpeechInput{
		Engine:       aws.String(p.engine),
		OutputFormat: aws.String(polly.OutputFormatOggVorbis),
		Text:         aws.String(SSML(req)),
		TextType:     aws.String(polly.TextTypeSsml),
		VoiceId:      aws.String(voice),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to synthesize speech: %w", err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized speech: %w", err)
	}
	return audio, nil
}

// SSML wraps the escaped text of req in a speak element, converting the
// words-per-minute speed into a relative prosody rate.
func SSML(req Request) string {
	text := html.EscapeString(req.Text)
	if req.Speed <= 0 {
		return "<speak>" + text + "</speak>"
	}
	rate := req.Speed * 100 / defaultSpeed
	return fmt.Sprintf(`<speak><prosody rate="%d%%">%s</prosody></speak>`, rate, text)
}
