package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/JakeFAU/workflow-translator/internal/translate"
)

// prompter reads answers line by line. It is only used when stdin is a terminal
// or when tests hand it a reader.
type prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{reader: bufio.NewReader(in), out: out}
}

// stdinIsTerminal reports whether prompts can be answered interactively.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ask prints label and returns the trimmed answer, or def when it is empty.
func (p *prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		if errors.Is(err, io.EOF) && def == "" {
			return "", fmt.Errorf("%s: %w", label, io.ErrUnexpectedEOF)
		}
		return def, nil
	}
	return answer, nil
}

// askInt asks until the answer is a positive integer.
func (p *prompter) askInt(label string, def int) (int, error) {
	for {
		answer, err := p.ask(label, strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(answer)
		if convErr == nil && n > 0 {
			return n, nil
		}
		fmt.Fprintf(p.out, "%q is not a positive number\n", answer)
	}
}

// PromptLangs asks for the language pair of an input without a cursor.
func (p *prompter) PromptLangs(context.Context) (translate.Langs, error) {
	src, err := p.ask("Source language", "")
	if err != nil {
		return translate.Langs{}, err
	}
	tgt, err := p.ask("Target language", "")
	if err != nil {
		return translate.Langs{}, err
	}
	return translate.Langs{Source: src, Target: tgt}, nil
}
