package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haneul/mindsketch/internal/archive"
	"github.com/haneul/mindsketch/internal/canvas"
	"github.com/haneul/mindsketch/internal/chat"
	"github.com/haneul/mindsketch/internal/display"
	"github.com/haneul/mindsketch/internal/keys"
	"github.com/haneul/mindsketch/internal/provider"
	"github.com/haneul/mindsketch/internal/provider/gemini"
	"github.com/haneul/mindsketch/internal/provider/relay"
	"github.com/haneul/mindsketch/internal/repl"
	"github.com/haneul/mindsketch/internal/sequencer"
	"github.com/haneul/mindsketch/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagAPIKey       string
	flagRelay        string
	flagCameraSource string
	flagVerbose      bool
)

type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	NewBackend func(cfg *provider.Config, viaRelay bool) (provider.Backend, error)
	NewStore   func() (*archive.Store, error)
	NewKeys    func() (*keys.Store, error)
}

func DefaultApp() *App {
	return &App{
		In:  os.Stdin,
		Out: os.Stdout,
		Err: os.Stderr,
		NewBackend: func(cfg *provider.Config, viaRelay bool) (provider.Backend, error) {
			if viaRelay {
				return relay.New(cfg)
			}
			return gemini.New(cfg)
		},
		NewStore: archive.NewStore,
		NewKeys:  keys.NewStore,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A local .env may carry GEMINI_API_KEY; absence is fine.
	_ = godotenv.Load()

	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mindsketch",
		Short: "HTP drawing test with AI interpretation",
		Long: `mindsketch runs the House-Tree-Person projective drawing test in the
terminal: draw (or import, or photograph) a house, a tree and a person,
get an AI interpretation of the three drawings, and talk it over with a
counselor persona.

Examples:
  mindsketch                       # start the interactive test
  mindsketch history               # list archived results
  mindsketch chat 1756372800000    # discuss an archived result
  mindsketch keys set gemini ...   # store the API key`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), app)
		},
	}

	cmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Gemini API key (defaults to stored key or GEMINI_API_KEY)")
	cmd.PersistentFlags().StringVar(&flagRelay, "relay", "", "analysis relay base URL (https), replaces the local API key")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log request/response traffic")
	cmd.Flags().StringVar(&flagCameraSource, "camera-source", "", "path to a still file acting as the camera frame source")

	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newChatCmd(app))
	cmd.AddCommand(newKeysCmd(app))

	return cmd
}

func newBackend(app *App) (provider.Backend, error) {
	if flagRelay != "" {
		return app.NewBackend(&provider.Config{BaseURL: flagRelay, Verbose: flagVerbose}, true)
	}

	apiKey, source, err := keys.GetAPIKey(flagAPIKey)
	if err != nil {
		return nil, err
	}
	if flagVerbose {
		fmt.Fprintf(app.Err, "Using API key from %s\n", source)
	}
	return app.NewBackend(&provider.Config{APIKey: apiKey, Verbose: flagVerbose}, false)
}

func runInteractive(ctx context.Context, app *App) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := newBackend(app)
	if err != nil {
		return err
	}

	store, err := app.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer store.Close()

	var driver canvas.Driver
	if flagCameraSource != "" {
		driver = canvas.NewFileDriver(flagCameraSource)
	}

	surface, err := canvas.NewSurface(canvas.DefaultWidth, canvas.DefaultHeight, driver)
	if err != nil {
		return err
	}
	defer surface.Close()

	var displayer *display.Displayer
	if display.IsTerminalSupported() {
		displayer = display.New(app.Out)
	} else {
		displayer = display.New(io.Discard)
	}

	r := repl.New(&repl.Config{
		In:        app.In,
		Out:       app.Out,
		Err:       app.Err,
		Surface:   surface,
		Sequencer: sequencer.New(backend, store),
		Backend:   backend,
		Store:     store,
		Displayer: displayer,
	})
	return r.Run(ctx)
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived analysis results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.NewStore()
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(app.Out, "No archived results yet.")
				return nil
			}

			for _, res := range results {
				fmt.Fprintf(app.Out, "%s  %-14s %s\n", res.ID, humanize.Time(res.Date), res.Summary)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one archived result in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.NewStore()
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(app.Out, res)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an archived result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.NewStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func printResult(out io.Writer, res *models.AnalysisResult) {
	fmt.Fprintf(out, "분석 결과 %s (%s)\n\n", res.ID, res.Date.Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "%s\n\n", res.Summary)
	for _, trait := range res.PersonalityTraits {
		fmt.Fprintf(out, "  %s: %.0f/100 - %s\n", trait.Trait, trait.Score, trait.Description)
	}
	fmt.Fprintf(out, "\n감정 상태: %s\n", res.EmotionalState)
	for _, insight := range res.KeyInsights {
		fmt.Fprintf(out, "  - %s\n", insight)
	}
	fmt.Fprintf(out, "\n조언: %s\n", res.Advice)
}

func newChatCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <id>",
		Short: "Discuss an archived result with the counselor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			backend, err := newBackend(app)
			if err != nil {
				return err
			}

			store, err := app.NewStore()
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}

			session, err := chat.Open(res, backend)
			if err != nil {
				return err
			}
			defer session.Close()

			return chatLoop(ctx, app, session)
		},
	}
}

func chatLoop(ctx context.Context, app *App, session *chat.Session) error {
	fmt.Fprintf(app.Out, "상담사: %s\n", chat.Greeting)
	fmt.Fprintln(app.Out, "('/exit' ends the conversation)")

	scanner := newLineScanner(app.In)
	for {
		fmt.Fprint(app.Out, "you> ")
		line, ok := scanner()
		if !ok {
			return nil
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}
		if line == "" {
			continue
		}

		fmt.Fprint(app.Out, "상담사: ")
		printed := 0
		err := session.Send(ctx, line, func(partial string) {
			fmt.Fprint(app.Out, partial[printed:])
			printed = len(partial)
		})
		if err != nil {
			fmt.Fprintf(app.Out, "\n상담사: %s\n", chat.Fallback)
			fmt.Fprintf(app.Err, "Warning: %v\n", err)
			continue
		}
		fmt.Fprintln(app.Out)
	}
}

// newLineScanner returns a closure yielding trimmed input lines.
func newLineScanner(in io.Reader) func() (string, bool) {
	scanner := bufio.NewScanner(in)
	return func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}
}

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <provider> <key>",
		Short: "Store an API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := app.NewKeys()
			if err != nil {
				return err
			}
			if err := store.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Stored key for %s (%s)\n", args[0], keys.MaskKey(args[1]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <provider>",
		Short: "Show a stored key, masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := app.NewKeys()
			if err != nil {
				return err
			}
			key, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("no key stored for %s", args[0])
			}
			fmt.Fprintf(app.Out, "%s: %s\n", args[0], keys.MaskKey(key))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <provider>",
		Short: "Delete a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := app.NewKeys()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Deleted key for %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List providers with stored keys",
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := app.NewKeys()
			if err != nil {
				return err
			}
			providers, err := store.List()
			if err != nil {
				return err
			}
			if len(providers) == 0 {
				fmt.Fprintln(app.Out, "No stored keys.")
				return nil
			}
			for _, p := range providers {
				fmt.Fprintln(app.Out, p)
			}
			return nil
		},
	})

	return cmd
}
