// Package prompt asks the operator for configuration values on a terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrNoInput is returned when input ends before a required answer is given.
var ErrNoInput = errors.New("no input available")

// Prompter asks questions one at a time, reading one line per answer.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// New creates a prompter reading answers from in and writing questions to out.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints question and returns the trimmed answer. An empty answer selects
// def; when def is empty too the question is repeated. End of input returns
// def if there is one, ErrNoInput otherwise.
func (p *Prompter) Ask(question, def string) (string, error) {
	for {
		if def != "" {
			fmt.Fprintf(p.out, "%s [%s]: ", question, def)
		} else {
			fmt.Fprintf(p.out, "%s: ", question)
		}

		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read answer: %w", err)
		}
		if answer != "" {
			return answer, nil
		}
		if def != "" {
			slog.Debug("Prompt answered with default", "question", question, "default", def)
			return def, nil
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(p.out)
			return "", fmt.Errorf("%q: %w", question, ErrNoInput)
		}
	}
}

// Fill asks question only when *value is empty, storing the answer in place.
func (p *Prompter) Fill(value *string, question, def string) error {
	if *value != "" {
		return nil
	}
	answer, err := p.Ask(question, def)
	if err != nil {
		return err
	}
	*value = answer
	return nil
}
