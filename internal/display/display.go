// Package display renders committed drawings inline in terminals that speak
// the kitty graphics protocol. Unsupported terminals get a one-line notice
// instead of escape garbage.
package display

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/haneul/mindsketch/pkg/models"
)

var ErrNoImage = errors.New("no image data to display")

type Displayer struct {
	out io.Writer
}

func New(out io.Writer) *Displayer {
	return &Displayer{out: out}
}

// Show writes the captured drawing to the terminal as an inline image.
func (d *Displayer) Show(img *models.CapturedImage) error {
	if img == nil || len(img.PNG) == 0 {
		return ErrNoImage
	}

	if err := encodeInline(d.out, img.PNG); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	fmt.Fprintln(d.out)
	return nil
}

// IsTerminalSupported reports whether stdout is an interactive terminal that
// understands the kitty graphics protocol.
func IsTerminalSupported() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}

	termProgram := strings.ToLower(os.Getenv("TERM_PROGRAM"))
	for _, prog := range []string{"kitty", "ghostty", "iterm.app", "wezterm"} {
		if termProgram == prog {
			return true
		}
	}

	if os.Getenv("KITTY_WINDOW_ID") != "" {
		return true
	}

	termName := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(termName, "kitty") || strings.Contains(termName, "ghostty")
}
