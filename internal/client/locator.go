package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrPermissionDenied is what a locator returns when the user won't share a location.
var ErrPermissionDenied = errors.New("location permission denied")

// StaticLocator always answers with the same location, typically from --location.
type StaticLocator string

func (s StaticLocator) Locate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(s), nil
}

// PromptLocator asks on Out and waits for the answer on Lines. A blank answer
// means no coordinates; "n" or "no" refuses outright.
type PromptLocator struct {
	Lines <-chan string
	Out   io.Writer
}

func (p PromptLocator) Locate(ctx context.Context) (string, error) {
	fmt.Fprint(p.Out, "Where are you? \"lat,lon\" or a place name, blank to refuse: ")

	select {
	case line, ok := <-p.Lines:
		if !ok {
			return "", ErrPermissionDenied
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "n", "no":
			return "", ErrPermissionDenied
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Lines reads r line by line in the background. The channel closes at EOF.
func Lines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}
