// Package extract asks a remote language model to turn an utterance into
// structured commands.
package extract

import (
	"context"
	"fmt"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"

	"homevox/internal/command"
)

const DefaultModel = string(openai.ChatModelGPT5Nano)

// OpenAI extracts commands through the OpenAI chat completions API.
type OpenAI struct {
	client  openai.Client
	model   string
	session *Session
}

func NewOpenAI(client openai.Client, model string, session *Session) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	if session == nil {
		session = NewSession(DefaultMaxTurns)
	}
	return &OpenAI{client: client, model: model, session: session}
}

func (x *OpenAI) Extract(ctx context.Context, text string) ([]command.Command, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
	}
	for _, t := range x.session.History() {
		msgs = append(msgs, openai.UserMessage(t.User), openai.AssistantMessage(t.Assistant))
	}
	msgs = append(msgs, openai.UserMessage(text))

	resp, err := x.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(x.model),
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

func (x *OpenAI) Reset() {
	x.session.Reset()
}
