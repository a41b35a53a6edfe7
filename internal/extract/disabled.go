package extract

import (
	"context"
	"errors"

	"homevox/internal/command"
)

var ErrDisabled = errors.New("remote extraction disabled: no API credentials")

// Disabled stands in when no credentials were configured. Every call fails,
// so turns take the connectivity failure path.
type Disabled struct{}

func (Disabled) Extract(context.Context, string) ([]command.Command, error) {
	return nil, ErrDisabled
}

func (Disabled) Reset() {}
