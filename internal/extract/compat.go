package extract

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"homevox/internal/command"
)

// Compat extracts commands through any server speaking the OpenAI chat
// completions dialect (llama.cpp, Ollama, vLLM).
type Compat struct {
	client  *goopenai.Client
	model   string
	session *Session
}

func NewCompat(baseURL, apiKey, model string, httpClient *http.Client, session *Session) *Compat {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if session == nil {
		session = NewSession(DefaultMaxTurns)
	}

	return &Compat{
		client:  goopenai.NewClientWithConfig(cfg),
		model:   model,
		session: session,
	}
}

func (x *Compat) Extract(ctx context.Context, text string) ([]command.Command, error) {
	msgs := []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	for _, t := range x.session.History() {
		msgs = append(msgs,
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: t.User},
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: t.Assistant},
		)
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: text})

	resp, err := x.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    x.model,
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	log.Debug("Extraction response", "data", content)

	cmds, err := Parse(content)
	if err != nil {
		return nil, err
	}

	x.session.Record(text, render(cmds))
	return cmds, nil
}

func (x *Compat) Reset() {
	x.session.Reset()
}
