package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExecSynthesizer speaks by running an external command such as
// "espeak-ng --stdin" or "say {}". A "{}" argument is replaced with the
// utterance; without one the utterance is written to stdin.
type ExecSynthesizer struct {
	Name string
	Args []string
}

func NewExecSynthesizer(command string) (*ExecSynthesizer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("speech command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("speech command %q: %w", fields[0], err)
	}
	return &ExecSynthesizer{Name: fields[0], Args: fields[1:]}, nil
}

func (x *ExecSynthesizer) Speak(ctx context.Context, text string) error {
	args := make([]string, len(x.Args))
	substituted := false
	for i, a := range x.Args {
		if a == "{}" {
			a, substituted = text, true
		}
		args[i] = a
	}

	cmd := exec.CommandContext(ctx, x.Name, args...)
	if !substituted {
		cmd.Stdin = strings.NewReader(text + "\n")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", x.Name, err, msg)
		}
		return fmt.Errorf("%s: %w", x.Name, err)
	}
	return nil
}
