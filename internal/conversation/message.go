package conversation

import (
	"time"

	"github.com/google/uuid"

	"homevox/internal/command"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

type Kind string

const (
	KindUserText   Kind = "user-text"
	KindAIText     Kind = "ai-text"
	KindProposal   Kind = "ai-proposal"
	KindSystemInfo Kind = "system-info"
	KindExecution  Kind = "execution-success"
)

type Message struct {
	ID       string            `json:"id"`
	Role     Role              `json:"role"`
	Kind     Kind              `json:"kind"`
	Text     string            `json:"text,omitempty"`
	Commands []command.Command `json:"commands,omitempty"`
	Time     time.Time         `json:"timestamp"`
}

func newMessage(role Role, kind Kind, text string, cmds []command.Command, now time.Time) Message {
	return Message{
		ID:       uuid.NewString(),
		Role:     role,
		Kind:     kind,
		Text:     text,
		Commands: command.CloneAll(cmds),
		Time:     now,
	}
}
