package repl

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/haneul/mindsketch/internal/canvas"
	"github.com/haneul/mindsketch/internal/chat"
	"github.com/haneul/mindsketch/internal/provider"
	"github.com/haneul/mindsketch/internal/security"
	"github.com/haneul/mindsketch/internal/sequencer"
	"github.com/haneul/mindsketch/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func (r *REPL) registerCommands() {
	commands := []Command{
		&StartCommand{},
		&StrokeCommand{},
		&EraseCommand{},
		&PenCommand{},
		&ImportCommand{},
		&CameraCommand{},
		&CaptureCommand{},
		&StopcamCommand{},
		&ClearCommand{},
		&ShowCommand{},
		&DoneCommand{},
		&ChatCommand{},
		&HistoryCommand{},
		&ReviewCommand{},
		&RestartCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}

	for _, cmd := range commands {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// parsePoint reads an "x,y" coordinate pair.
func parsePoint(arg string) (canvas.Point, error) {
	xs, ys, ok := strings.Cut(arg, ",")
	if !ok {
		return canvas.Point{}, fmt.Errorf("invalid point %q, want x,y", arg)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return canvas.Point{}, fmt.Errorf("invalid x in %q", arg)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return canvas.Point{}, fmt.Errorf("invalid y in %q", arg)
	}
	return canvas.Point{X: x, Y: y}, nil
}

func parseHexColor(arg string) (color.RGBA, error) {
	s := strings.TrimPrefix(arg, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q, want #rrggbb", arg)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q, want #rrggbb", arg)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func (r *REPL) printStageHeader(stage models.Stage) {
	fmt.Fprintf(r.out, "\n[%s] %s\n", stage, stage.Title())
	fmt.Fprintf(r.out, "%s\n", stage.Instruction())
	fmt.Fprintln(r.out, "Draw with 'stroke', 'import' a file or use 'camera'; 'done' submits.")
}

// StartCommand begins a fresh test run
type StartCommand struct{}

func (c *StartCommand) Name() string        { return "start" }
func (c *StartCommand) Aliases() []string   { return []string{"s"} }
func (c *StartCommand) Description() string { return "Start a new three-stage drawing test" }
func (c *StartCommand) Usage() string       { return "start" }

func (c *StartCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if r.seq.State() == sequencer.StateResult {
		if err := r.seq.Restart(); err != nil {
			return err
		}
	}
	if err := r.seq.Start(); err != nil {
		return err
	}
	r.surface.Reset()

	stage, _ := r.seq.CurrentStage()
	r.printStageHeader(stage)
	return nil
}

// StrokeCommand draws a freehand polyline
type StrokeCommand struct{}

func (c *StrokeCommand) Name() string        { return "stroke" }
func (c *StrokeCommand) Aliases() []string   { return []string{"st"} }
func (c *StrokeCommand) Description() string { return "Draw a freehand line through points" }
func (c *StrokeCommand) Usage() string       { return "stroke <x,y> [x,y ...]" }

func (c *StrokeCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if _, ok := r.seq.CurrentStage(); !ok {
		return fmt.Errorf("no capture stage in progress - use 'start' first")
	}

	points := make([]canvas.Point, 0, len(args))
	for _, arg := range args {
		p, err := parsePoint(arg)
		if err != nil {
			return err
		}
		points = append(points, p)
	}

	r.surface.BeginStroke(points[0])
	for _, p := range points[1:] {
		if err := r.surface.StrokeTo(p); err != nil {
			return err
		}
	}
	r.surface.EndStroke()
	return nil
}

// EraseCommand erases around a point
type EraseCommand struct{}

func (c *EraseCommand) Name() string        { return "erase" }
func (c *EraseCommand) Aliases() []string   { return nil }
func (c *EraseCommand) Description() string { return "Erase around a point" }
func (c *EraseCommand) Usage() string       { return "erase <x,y> [x,y ...]" }

func (c *EraseCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	for _, arg := range args {
		p, err := parsePoint(arg)
		if err != nil {
			return err
		}
		r.surface.EraseAt(p)
	}
	return nil
}

// PenCommand adjusts brush size and color
type PenCommand struct{}

func (c *PenCommand) Name() string        { return "pen" }
func (c *PenCommand) Aliases() []string   { return nil }
func (c *PenCommand) Description() string { return "Set brush size and optionally color" }
func (c *PenCommand) Usage() string       { return "pen <size> [#rrggbb]" }

func (c *PenCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	size, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid size %q", args[0])
	}
	r.surface.Canvas().SetBrushSize(size)

	if len(args) > 1 {
		col, err := parseHexColor(args[1])
		if err != nil {
			return err
		}
		r.surface.Canvas().SetBrushColor(col)
	}
	return nil
}

// ImportCommand places an image file onto the canvas
type ImportCommand struct{}

func (c *ImportCommand) Name() string        { return "import" }
func (c *ImportCommand) Aliases() []string   { return []string{"i"} }
func (c *ImportCommand) Description() string { return "Import an image file onto the canvas" }
func (c *ImportCommand) Usage() string       { return "import <path>" }

func (c *ImportCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if _, ok := r.seq.CurrentStage(); !ok {
		return fmt.Errorf("no capture stage in progress - use 'start' first")
	}

	path := args[0]
	if err := security.ValidateImportPath(path); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	if err := r.surface.ImportStill(data); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Imported %s onto the canvas.\n", path)
	return nil
}

// CameraCommand starts the camera stream
type CameraCommand struct{}

func (c *CameraCommand) Name() string        { return "camera" }
func (c *CameraCommand) Aliases() []string   { return []string{"cam"} }
func (c *CameraCommand) Description() string { return "Start the camera stream" }
func (c *CameraCommand) Usage() string       { return "camera" }

func (c *CameraCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if _, ok := r.seq.CurrentStage(); !ok {
		return fmt.Errorf("no capture stage in progress - use 'start' first")
	}
	if err := r.surface.StartCamera(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Camera started. 'capture' grabs a still, 'stopcam' releases the device.")
	return nil
}

// CaptureCommand grabs one camera still
type CaptureCommand struct{}

func (c *CaptureCommand) Name() string        { return "capture" }
func (c *CaptureCommand) Aliases() []string   { return nil }
func (c *CaptureCommand) Description() string { return "Capture a still from the camera" }
func (c *CaptureCommand) Usage() string       { return "capture" }

func (c *CaptureCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if err := r.surface.CaptureStillFromCamera(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Still captured onto the canvas; camera released.")
	return nil
}

// StopcamCommand releases the camera
type StopcamCommand struct{}

func (c *StopcamCommand) Name() string        { return "stopcam" }
func (c *StopcamCommand) Aliases() []string   { return nil }
func (c *StopcamCommand) Description() string { return "Stop the camera stream" }
func (c *StopcamCommand) Usage() string       { return "stopcam" }

func (c *StopcamCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	return r.surface.StopCamera()
}

// ClearCommand wipes the canvas
type ClearCommand struct{}

func (c *ClearCommand) Name() string        { return "clear" }
func (c *ClearCommand) Aliases() []string   { return nil }
func (c *ClearCommand) Description() string { return "Clear the canvas" }
func (c *ClearCommand) Usage() string       { return "clear" }

func (c *ClearCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.surface.Clear()
	return nil
}

// ShowCommand previews the canvas inline
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return nil }
func (c *ShowCommand) Description() string { return "Preview the canvas in the terminal" }
func (c *ShowCommand) Usage() string       { return "show" }

func (c *ShowCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	data, err := r.surface.Canvas().Encode()
	if err != nil {
		return err
	}
	return r.displayer.Show(&models.CapturedImage{
		PNG:      data,
		Width:    r.surface.Canvas().Width(),
		Height:   r.surface.Canvas().Height(),
		Modality: r.surface.Modality(),
	})
}

// DoneCommand commits the current stage
type DoneCommand struct{}

func (c *DoneCommand) Name() string        { return "done" }
func (c *DoneCommand) Aliases() []string   { return []string{"d", "commit"} }
func (c *DoneCommand) Description() string { return "Submit the current drawing" }
func (c *DoneCommand) Usage() string       { return "done" }

func (c *DoneCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	stage, ok := r.seq.CurrentStage()
	if !ok {
		return fmt.Errorf("no capture stage in progress - use 'start' first")
	}

	img, err := r.surface.Commit()
	if err != nil {
		return err
	}

	if stage == models.StagePerson {
		fmt.Fprintln(r.out, "All three drawings submitted. Analyzing...")
	}

	if err := r.seq.Commit(ctx, img); err != nil {
		r.surface.Reset()
		return fmt.Errorf("analysis failed: %w", err)
	}
	r.surface.Reset()

	if next, ok := r.seq.CurrentStage(); ok {
		r.printStageHeader(next)
		return nil
	}

	renderResult(r, r.seq.Result())
	fmt.Fprintln(r.out, "Type 'chat' to talk about this result, or 'start' for a new test.")
	return nil
}

func renderResult(r *REPL, res *models.AnalysisResult) {
	if res == nil {
		return
	}

	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "=== 분석 결과 (%s) ===\n", res.Date.Format("2006-01-02 15:04"))
	fmt.Fprintf(r.out, "%s\n\n", res.Summary)

	for _, trait := range res.PersonalityTraits {
		fmt.Fprintf(r.out, "  %-12s %s %3.0f\n", trait.Trait, scoreBar(trait.Score), trait.Score)
		if trait.Description != "" {
			fmt.Fprintf(r.out, "  %-12s %s\n", "", trait.Description)
		}
	}

	fmt.Fprintf(r.out, "\n감정 상태: %s\n", res.EmotionalState)
	if len(res.KeyInsights) > 0 {
		fmt.Fprintln(r.out, "\n주요 통찰:")
		for _, insight := range res.KeyInsights {
			fmt.Fprintf(r.out, "  - %s\n", insight)
		}
	}
	fmt.Fprintf(r.out, "\n조언: %s\n\n", res.Advice)
}

// scoreBar renders a 20-cell bar for a 0-100 trait score.
func scoreBar(score float64) string {
	if score < models.TraitScoreMin {
		score = models.TraitScoreMin
	}
	if score > models.TraitScoreMax {
		score = models.TraitScoreMax
	}
	filled := int(score / models.TraitScoreMax * 20)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", 20-filled) + "]"
}

// guidance maps gateway failure classes to recovery hints. Quota and
// credential failures get their own message; everything else stands on the
// error text alone.
func guidance(err error) string {
	switch {
	case errors.Is(err, provider.ErrQuota):
		return "상담사가 현재 다른 내담자와 대화 중입니다. 잠시 후 다시 말을 걸어주세요."
	case errors.Is(err, provider.ErrCredential):
		return "API 키를 확인해 주세요: 'mindsketch keys set gemini <key>' 또는 GEMINI_API_KEY 설정"
	}
	return ""
}

// ChatCommand opens the counselor conversation for the shown result
type ChatCommand struct{}

func (c *ChatCommand) Name() string        { return "chat" }
func (c *ChatCommand) Aliases() []string   { return []string{"c"} }
func (c *ChatCommand) Description() string { return "Chat with the counselor about the shown result" }
func (c *ChatCommand) Usage() string       { return "chat" }

func (c *ChatCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	result := r.seq.Result()
	if result == nil {
		return fmt.Errorf("no analysis result to discuss - finish a test or 'review' an archived one")
	}

	session, err := chat.Open(result, r.backend)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Fprintf(r.out, "\n상담사: %s\n", chat.Greeting)
	fmt.Fprintln(r.out, "('/exit' ends the conversation)")

	for {
		fmt.Fprint(r.out, "you> ")
		line, ok := r.readLine()
		if !ok {
			return nil
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}
		if line == "" {
			continue
		}

		fmt.Fprint(r.out, "상담사: ")
		printed := 0
		err := session.Send(ctx, line, func(partial string) {
			fmt.Fprint(r.out, partial[printed:])
			printed = len(partial)
		})
		if err != nil {
			fmt.Fprintf(r.out, "\n상담사: %s\n", chat.Fallback)
			fmt.Fprintf(r.err, "Warning: %v\n", err)
			continue
		}
		fmt.Fprintln(r.out)
	}
}

// HistoryCommand lists archived results
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h"} }
func (c *HistoryCommand) Description() string { return "List archived analysis results" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	results, err := r.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list archive: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(r.out, "No archived results yet.")
		return nil
	}

	for _, res := range results {
		summary := res.Summary
		if len([]rune(summary)) > 40 {
			summary = string([]rune(summary)[:40]) + "..."
		}
		fmt.Fprintf(r.out, "%s  %-14s %s\n", res.ID, humanize.Time(res.Date), summary)
	}
	return nil
}

// ReviewCommand shows an archived result
type ReviewCommand struct{}

func (c *ReviewCommand) Name() string        { return "review" }
func (c *ReviewCommand) Aliases() []string   { return []string{"r"} }
func (c *ReviewCommand) Description() string { return "Show an archived result by id" }
func (c *ReviewCommand) Usage() string       { return "review <id>" }

func (c *ReviewCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	res, err := r.store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if err := r.seq.Review(res); err != nil {
		return err
	}

	renderResult(r, res)
	fmt.Fprintln(r.out, "Type 'chat' to talk about this result.")
	return nil
}

// RestartCommand returns to the idle screen
type RestartCommand struct{}

func (c *RestartCommand) Name() string        { return "restart" }
func (c *RestartCommand) Aliases() []string   { return nil }
func (c *RestartCommand) Description() string { return "Abandon the current run or result" }
func (c *RestartCommand) Usage() string       { return "restart" }

func (c *RestartCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if err := r.seq.Restart(); err != nil {
		return err
	}
	r.surface.Reset()
	fmt.Fprintln(r.out, "Back to the idle screen. 'start' begins a new test.")
	return nil
}

// HelpCommand lists commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	seen := make(map[string]bool)
	var names []string
	for _, cmd := range r.commands {
		if !seen[cmd.Name()] {
			seen[cmd.Name()] = true
			names = append(names, cmd.Name())
		}
	}
	sort.Strings(names)

	fmt.Fprintln(r.out, "Commands:")
	for _, name := range names {
		cmd := r.commands[name]
		fmt.Fprintf(r.out, "  %-24s %s\n", cmd.Usage(), cmd.Description())
	}
	return nil
}

// QuitCommand exits the loop
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit mindsketch" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.surface.Close()
	r.Stop()
	return nil
}
