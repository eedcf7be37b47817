// Package repl is the interactive front end: it walks the user through the
// three capture stages, hands the drawings to the analysis gateway, renders
// the result, and hosts the counselor conversation.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/haneul/mindsketch/internal/archive"
	"github.com/haneul/mindsketch/internal/canvas"
	"github.com/haneul/mindsketch/internal/display"
	"github.com/haneul/mindsketch/internal/provider"
	"github.com/haneul/mindsketch/internal/sequencer"
)

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	surface   *canvas.Surface
	seq       *sequencer.Sequencer
	backend   provider.Backend
	store     *archive.Store
	displayer *display.Displayer
	commands  map[string]Command
	scanner   *bufio.Scanner
	running   bool
}

type Config struct {
	In        io.Reader
	Out       io.Writer
	Err       io.Writer
	Surface   *canvas.Surface
	Sequencer *sequencer.Sequencer
	Backend   provider.Backend
	Store     *archive.Store
	Displayer *display.Displayer
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		surface:   cfg.Surface,
		seq:       cfg.Sequencer,
		backend:   cfg.Backend,
		store:     cfg.Store,
		displayer: cfg.Displayer,
		commands:  make(map[string]Command),
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.scanner = bufio.NewScanner(r.in)
	r.printWelcome()

	for r.running {
		r.printPrompt()
		line, ok := r.readLine()
		if !ok {
			break
		}
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
			if hint := guidance(err); hint != "" {
				fmt.Fprintln(r.err, hint)
			}
		}
	}

	return r.scanner.Err()
}

// readLine pulls the next input line; commands that run their own dialog
// (the counselor chat) share the same scanner.
func (r *REPL) readLine() (string, bool) {
	if !r.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.scanner.Text()), true
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "mindsketch interactive mode")
	fmt.Fprintln(r.out, "Draw a house, a tree and a person; each drawing is interpreted together.")
	fmt.Fprintln(r.out, "Type 'start' to begin a test, 'help' for commands, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	if stage, ok := r.seq.CurrentStage(); ok {
		fmt.Fprintf(r.out, "mindsketch [%s]> ", stage)
		return
	}
	switch r.seq.State() {
	case sequencer.StateResult:
		fmt.Fprint(r.out, "mindsketch [result]> ")
	default:
		fmt.Fprint(r.out, "mindsketch> ")
	}
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
