package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tada/internal/app"
	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/todo"
	"github.com/idilsaglam/tada/internal/ui"
)

// Exit codes: 0 ok, 1 error, 2 usage.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// syncTimeout bounds how long a command waits for the first snapshot.
const syncTimeout = 10 * time.Second

// usageError marks errors that exit with ExitUsage.
type usageError struct {
	msg  string
	hint string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// Options tune output behavior from root flags.
type Options struct {
	Group      bool   // list grouped by pending/done
	Plain      bool   // print the list instead of opening the TUI
	ConfigPath string // explicit config file
	Theme      string
	NoColor    bool
	Debug      bool
}

// env is what every subcommand shares.
type env struct {
	opt Options
	in  *bufio.Reader
	cfg config.Config
	log *slog.Logger
	app *app.App
}

// Run parses args, runs the subcommand and returns an exit code.
func Run(ctx context.Context, args []string, stdin io.Reader) int {
	e := &env{in: bufio.NewReader(stdin)}
	root := newRootCmd(e)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if e.app != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if cerr := e.app.Close(closeCtx); cerr != nil {
			e.log.Warn("shutdown", "error", cerr)
		}
		cancel()
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ue *usageError
	if errors.As(err, &ue) {
		ui.Fail(ue.msg)
		if ue.hint != "" {
			fmt.Fprintln(os.Stderr, ui.C(ui.Current().Muted, ue.hint))
		}
		return ExitUsage
	}
	ui.Fail(err.Error())
	return ExitError
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "todo",
		Short: "A tiny synced todo list",
		Long: `todo keeps a personal todo list in sync.

Sign up or log in once; every command then works on your list, and
the interactive view follows changes as they are saved.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return &usageError{msg: "missing subcommand"}
			}
			_ = cmd.Help()
			return usagef("unknown subcommand: %s", args[0])
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.BoolVar(&e.opt.Group, "group", false, "group output by pending/done")
	flags.StringVar(&e.opt.ConfigPath, "config", "", "config file (default $TADA_CONFIG or ~/.config/tada/config.toml)")
	flags.StringVar(&e.opt.Theme, "theme", "", "color theme: classic, neon or mono")
	flags.BoolVar(&e.opt.NoColor, "no-color", false, "disable colors")
	flags.BoolVar(&e.opt.Debug, "debug", false, "debug logging")

	root.AddCommand(
		signupCmd(e),
		loginCmd(e),
		logoutCmd(e),
		authCmd(e),
		addCmd(e),
		lsCmd(e),
		doneCmd(e, "done", true),
		doneCmd(e, "undone", false),
		editCmd(e),
		rmCmd(e),
		importCmd(e),
		exportCmd(e),
	)
	return root
}

// setup loads config and styles the output; the app itself opens lazily.
func (e *env) setup() error {
	path := e.opt.ConfigPath
	if path == "" {
		path = os.Getenv("TADA_CONFIG")
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	e.cfg = cfg

	theme := cfg.UI.Theme
	if e.opt.Theme != "" {
		theme = e.opt.Theme
	}
	ui.SetTheme(theme)
	if e.opt.NoColor {
		ui.SetColorForcing(false, true)
	}

	level := slog.LevelWarn
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelWarn
	}
	if e.opt.Debug {
		level = slog.LevelDebug
	}
	e.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

func (e *env) open(ctx context.Context) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	a, err := app.Open(ctx, e.cfg, app.WithLogger(e.log))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	e.app = a
	return a, nil
}

// synced opens the app and waits for the signed-in user's list.
func (e *env) synced(ctx context.Context) (*app.App, error) {
	a, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	wctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := a.Synced(wctx); err != nil {
		if errors.Is(err, todo.ErrNotBound) {
			return nil, &usageError{
				msg:  "not signed in",
				hint: "Run: todo login (or todo signup)",
			}
		}
		return nil, fmt.Errorf("sync: %w", err)
	}
	return a, nil
}

// prompt reads one line from stdin after printing label.
func (e *env) prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := e.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// index parses a 1-based index against n items.
func index(name, arg string, n int) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, usagef("%s: not a number: %s", name, arg)
	}
	if i < 1 || i > n {
		return 0, &usageError{
			msg:  fmt.Sprintf("index out of range: have %d, got %d", n, i),
			hint: "Hint: run `todo ls` to see valid indexes",
		}
	}
	return i - 1, nil
}

func wait(ctx context.Context, op *dispatch.Op) error {
	wctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	return op.Wait(wctx)
}
