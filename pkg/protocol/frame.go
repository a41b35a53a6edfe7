// Package protocol implements the hub line protocol: colon separated frames
// TO:VERB:NOUN[:ARGS...]:FROM carried over a websocket.
package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const Broadcast = "ALL"

var tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

type Frame struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

// Parse reads a single frame. Verb and noun are upper-cased.
func Parse(line string) (*Frame, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty frame")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return nil, errors.New("frame contains whitespace")
	}

	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	f := &Frame{
		To:   parts[0],
		Verb: strings.ToUpper(parts[1]),
		Noun: strings.ToUpper(parts[2]),
		Args: append([]string(nil), parts[3:len(parts)-1]...),
		From: parts[len(parts)-1],
	}

	if !isToken(f.To) {
		return nil, fmt.Errorf("invalid TO token: %q", f.To)
	}
	if !isToken(f.From) {
		return nil, fmt.Errorf("invalid FROM token: %q", f.From)
	}
	if !isToken(f.Verb) || !isToken(f.Noun) {
		return nil, fmt.Errorf("invalid VERB/NOUN: %q %q", f.Verb, f.Noun)
	}
	for i, a := range f.Args {
		if !isToken(a) {
			return nil, fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}
	return f, nil
}

func (f Frame) String() string {
	parts := make([]string, 0, 4+len(f.Args))
	parts = append(parts, f.To, f.Verb, f.Noun)
	parts = append(parts, f.Args...)
	parts = append(parts, f.From)
	return strings.Join(parts, ":")
}

// Validate checks the fields that String does not.
func (f Frame) Validate() error {
	_, err := Parse(f.String())
	return err
}

func (f Frame) IsError() bool { return f.Verb == "ERR" }

// Reply builds the answer to f: addressed back to its sender, with verb OK
// or ERR.
func (f Frame) Reply(ok bool, reason string, args ...string) Frame {
	verb := "OK"
	if !ok {
		verb = "ERR"
	}
	return Frame{To: f.From, Verb: verb, Noun: reason, Args: args, From: f.To}
}

func isToken(s string) bool {
	return tokenRe.MatchString(s)
}
