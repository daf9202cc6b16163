package tts

import "context"

// Generator adapts the package's provider-fallback TextToSpeech function to
// notify.TTSGenerator, so the dispatcher can depend on an interface rather
// than this package's Config type.
type Generator struct {
	cfg *Config
}

// NewGenerator constructs a Generator. cfg.ApplyDefaults should already
// have been called by the caller (normally during config loading).
func NewGenerator(cfg *Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate converts text to speech, returning the path to the audio file.
// voiceID, when non-empty, overrides the configured ElevenLabs voice and
// OpenAI voice for this call only; Edge TTS has no per-call voice override
// in the upstream API this wraps.
func (g *Generator) Generate(ctx context.Context, text, voiceID string) (string, error) {
	cfg := *g.cfg
	if voiceID != "" {
		cfg.ElevenLabs.VoiceID = voiceID
		cfg.OpenAI.Voice = voiceID
	}
	result, err := TextToSpeech(ctx, &cfg, text, "")
	if err != nil {
		return "", err
	}
	return result.AudioPath, nil
}
