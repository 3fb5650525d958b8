package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/creatorloop/clipscript-bot/internal/config"
	"github.com/creatorloop/clipscript-bot/internal/model"
)

// AIClient describes the part of the OpenAI client used by the service.
type AIClient interface {
	ChatCompletion(ctx context.Context, prompt string) (string, error)
}

// Result is one generation outcome. JobID is an opaque reference carried
// into dispatch and logs.
type Result struct {
	Content string
	JobID   string
}

// GenerationService turns a channel's settings into a prompt and runs it
// through the AI client.
type GenerationService struct {
	ai      AIClient
	prompts map[string]config.Prompt
}

func NewGenerationService(ai AIClient, prompts map[string]config.Prompt) *GenerationService {
	return &GenerationService{ai: ai, prompts: prompts}
}

// BuildPrompt renders the channel's platform template. Unknown platforms
// fall back to the "default" template.
func (s *GenerationService) BuildPrompt(ch *model.Channel) string {
	p, ok := s.prompts[strings.ToLower(ch.Platform)]
	if !ok {
		p = s.prompts["default"]
	}
	prompt := p.Template
	prompt = strings.ReplaceAll(prompt, "{platform}", ch.Platform)
	prompt = strings.ReplaceAll(prompt, "{tone}", ch.Tone)
	prompt = strings.ReplaceAll(prompt, "{language}", ch.Language)
	prompt = strings.ReplaceAll(prompt, "{topic}", ch.Topic)
	if p.Style != "" {
		prompt = prompt + "\n" + p.Style
	}
	return prompt
}

// Generate produces one script for the channel. Without an AI client the
// rendered prompt itself is returned, which keeps local runs useful.
func (s *GenerationService) Generate(ctx context.Context, ch *model.Channel) (*Result, error) {
	prompt := s.BuildPrompt(ch)
	jobID := uuid.NewString()
	if s.ai == nil {
		return &Result{Content: prompt, JobID: jobID}, nil
	}
	content, err := s.ai.ChatCompletion(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &Result{Content: content, JobID: jobID}, nil
}
