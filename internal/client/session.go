package client

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/DoyleJ11/weatherboard/internal/onboarding"
)

// Prompt is the terminal side of a session.
type Prompt struct {
	Lines <-chan string
	Out   io.Writer
	// Name answers the name question without asking.
	Name string
}

// Drive renders every snapshot and answers the name question, until updates
// closes or ctx ends. Lines are only read while the machine is waiting for a
// name, so a location prompt can share them. The question is printed once per
// answer; board pushes while waiting do not repeat it.
func Drive(ctx context.Context, m *onboarding.Machine, updates <-chan onboarding.Snapshot, p Prompt) {
	preset := strings.TrimSpace(p.Name)
	var lines <-chan string // nil unless asking
	asking := false

	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-updates:
			if !ok {
				return
			}
			_ = Render(p.Out, snap)

			if !snap.HasTag(onboarding.TagGetName) {
				lines = nil
				asking = false
				continue
			}
			if preset != "" {
				m.Send(onboarding.NameGiven{Name: preset})
				preset = ""
				continue
			}
			if !asking {
				fmt.Fprint(p.Out, "What's your name? ")
				asking = true
			}
			lines = p.Lines

		case line, ok := <-lines:
			lines = nil
			asking = false
			if !ok {
				return
			}
			m.Send(onboarding.NameGiven{Name: line})
		}
	}
}
