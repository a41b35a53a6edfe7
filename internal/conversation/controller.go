// Package conversation resolves each user turn into a proposal, a
// confirmation, a rejection or a plain reply, and keeps the chat log.
package conversation

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"homevox/internal/command"
	"homevox/internal/device"
)

// Canned responses.
const (
	RePromptText      = "Okay, I've cancelled that. What would you like me to do instead?"
	GreetingText      = "Hello! I can control the living room light, the front door lock and the thermostat. What would you like to do?"
	NotUnderstoodText = "Sorry, I couldn't understand that. Could you say it another way?"
	FailureText       = "Sorry, I'm having trouble connecting right now. Please try again in a moment."
)

type Extractor interface {
	Extract(ctx context.Context, text string) ([]command.Command, error)
	Reset()
}

type Executor interface {
	Execute(cmds []command.Command) device.Result
}

type Speaker interface {
	Speak(text string)
	Speaking() bool
}

type Options struct {
	Now       func() time.Time
	OnMessage func(Message)
	OnReset   func()
}

// Controller is driven from a single goroutine through Handle and Reset.
// Messages and Pending may be read from anywhere.
type Controller struct {
	ext  Extractor
	exec Executor
	out  Speaker
	opts Options

	mu      sync.Mutex
	log     []Message
	pending []command.Command
}

func New(ext Extractor, exec Executor, out Speaker, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		ext:  ext,
		exec: exec,
		out:  out,
		opts: opts,
	}
}

// Messages returns a copy of the chat log.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.log...)
}

// Pending returns a copy of the proposal awaiting confirmation, or nil.
func (c *Controller) Pending() []command.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return command.CloneAll(c.pending)
}

// Reset drops the log, the pending proposal and the remote session.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.log = nil
	c.pending = nil
	c.mu.Unlock()

	c.ext.Reset()
	log.Info("Conversation reset")

	if c.opts.OnReset != nil {
		c.opts.OnReset()
	}
}

// Handle resolves one user turn.
func (c *Controller) Handle(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if c.out.Speaking() {
		log.Debug("Discarding turn while speaking", "text", text)
		return
	}

	norm := normalize(text)
	if isReset(norm) {
		c.Reset()
		return
	}

	c.append(newMessage(RoleUser, KindUserText, text, nil, c.opts.Now()))

	pending := c.Pending()
	if pending != nil {
		if isRejection(norm) {
			log.Info("Proposal rejected")
			c.setPending(nil)
			c.reply(RePromptText)
			return
		}
		if isQuickConfirm(norm) {
			log.Info("Proposal confirmed locally", "commands", len(pending))
			c.execute(pending)
			return
		}
	}

	cmds, err := c.ext.Extract(ctx, text)
	if err != nil {
		log.Error("Extraction failed", "err", err)
		c.append(newMessage(RoleSystem, KindSystemInfo, FailureText, nil, c.opts.Now()))
		c.out.Speak(FailureText)
		return
	}

	if len(cmds) == 0 {
		if isGreeting(norm) {
			c.reply(GreetingText)
		} else {
			c.reply(NotUnderstoodText)
		}
		return
	}

	if pending != nil && command.Equal(cmds, pending) && isAffirmative(norm) {
		log.Info("Proposal confirmed by model", "commands", len(pending))
		c.execute(pending)
		return
	}

	c.propose(cmds)
}

func (c *Controller) propose(cmds []command.Command) {
	c.setPending(cmds)

	lines := make([]string, len(cmds))
	spoken := make([]string, len(cmds))
	for i, cmd := range cmds {
		summary := summaryOf(cmd)
		lines[i] = fmt.Sprintf("%d. %s", i+1, summary)
		if cmd.MissingInfo != "" {
			lines[i] += fmt.Sprintf(" (needs: %s)", cmd.MissingInfo)
		}
		spoken[i] = fmt.Sprintf("%d... %s.", i+1, summary)
	}

	c.append(newMessage(RoleAI, KindProposal, strings.Join(lines, "\n"), cmds, c.opts.Now()))
	c.out.Speak("I heard: " + strings.Join(spoken, " ") + " Should I execute?")
}

func (c *Controller) execute(cmds []command.Command) {
	res := c.exec.Execute(cmds)
	c.setPending(nil)

	c.append(newMessage(RoleSystem, KindExecution, res.Summary, cmds, c.opts.Now()))
	c.out.Speak("Done. " + strings.TrimRight(res.Summary, ". ") + ".")
}

func (c *Controller) reply(text string) {
	c.append(newMessage(RoleAI, KindAIText, text, nil, c.opts.Now()))
	c.out.Speak(text)
}

func (c *Controller) append(m Message) {
	c.mu.Lock()
	c.log = append(c.log, m)
	c.mu.Unlock()

	if c.opts.OnMessage != nil {
		c.opts.OnMessage(m)
	}
}

func (c *Controller) setPending(cmds []command.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = command.CloneAll(cmds)
}

func summaryOf(cmd command.Command) string {
	s := strings.TrimRight(strings.TrimSpace(cmd.Summary), ".")
	if s == "" {
		s = strings.ToLower(strings.ReplaceAll(command.NormalizeAction(cmd.Action), "_", " "))
	}
	return s
}
