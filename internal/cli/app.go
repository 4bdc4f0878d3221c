// Package cli implements the scrobblesync command line.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/urfave/cli/v2"
)

// options are the global flags.
type options struct {
	configPath string
	logLevel   string
	logFile    bool
	verbose    bool
}

// runner carries the state shared by command actions.
type runner struct {
	out io.Writer

	// open builds the env before a command runs.
	open func(opts options, out io.Writer) (*env, error)
	// spin runs fn while showing title.
	spin func(ctx context.Context, title string, fn func(context.Context) error) error
	// confirm asks a yes/no question.
	confirm func(title string) (bool, error)

	env *env
}

// NewApp returns the scrobblesync command tree writing to out.
func NewApp(out io.Writer) *cli.App {
	return newApp(&runner{
		out:     out,
		open:    openEnv,
		spin:    runSpinner,
		confirm: askConfirm,
	})
}

// Run executes the command line in args.
func Run(args []string) error {
	return NewApp(os.Stdout).Run(args)
}

// ExitCode returns the process exit code for an error returned by Run.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

func newApp(r *runner) *cli.App {
	return &cli.App{
		Name:      "scrobblesync",
		Usage:     "Scrobble your recently played tracks to Last.fm",
		Writer:    r.out,
		ErrWriter: r.out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a config.toml (default: XDG config dir, then ./config.toml)"},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn, error or disabled"},
			&cli.BoolFlag{Name: "log-file", Usage: "also write logs to a daily file under the XDG state dir"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "shorthand for --log-level debug"},
		},
		// Errors are returned to the caller, which picks the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
		Before:         r.before,
		After:          r.after,
		Commands: []*cli.Command{
			{
				Name:   "setup",
				Usage:  "Authorize the music provider and sign in to Last.fm",
				Action: r.setup,
			},
			{
				Name:  "login",
				Usage: "Sign in to Last.fm",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "desktop", Usage: "use the desktop token flow instead of a local callback"},
				},
				Action: r.login,
			},
			{
				Name:   "logout",
				Usage:  "Sign out of Last.fm",
				Action: r.logout,
			},
			{
				Name:   "authorize",
				Usage:  "Grant access to the music provider's listening history",
				Action: r.authorize,
			},
			{
				Name:   "sync",
				Usage:  "Fetch recently played tracks and scrobble the new ones",
				Action: r.sync,
			},
			{
				Name:      "retry",
				Usage:     "Resubmit one scrobble",
				ArgsUsage: "<id>",
				Action:    r.retry,
			},
			{
				Name:   "retry-all",
				Usage:  "Resubmit every failed scrobble",
				Action: r.retryAll,
			},
			{
				Name:  "history",
				Usage: "List local scrobbles",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Value: "all", Usage: "all, pending or failed"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 50, Usage: "maximum number of scrobbles to show, 0 for all"},
				},
				Action: r.history,
			},
			{
				Name:  "status",
				Usage: "Show sign-in state, last sync and statistics",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verify", Usage: "check the Last.fm session against the API"},
				},
				Action: r.status,
			},
			{
				Name:  "reset",
				Usage: "Delete the local log, the Last.fm session and the sync state",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
				},
				Action: r.reset,
			},
			{
				Name:   "daemon",
				Usage:  "Sync in the background and serve status and metrics",
				Action: r.daemon,
			},
		},
	}
}

func (r *runner) before(c *cli.Context) error {
	if c.Args().Len() == 0 || c.Args().First() == "help" {
		return nil
	}
	e, err := r.open(options{
		configPath: c.String("config"),
		logLevel:   c.String("log-level"),
		logFile:    c.Bool("log-file"),
		verbose:    c.Bool("verbose"),
	}, r.out)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	r.env = e
	return nil
}

func (r *runner) after(_ *cli.Context) error {
	if r.env == nil {
		return nil
	}
	err := r.env.Close()
	r.env = nil
	return err
}

func runSpinner(ctx context.Context, title string, fn func(context.Context) error) error {
	return spinner.New().Title(title).Context(ctx).ActionWithErr(fn).Run()
}

func askConfirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&ok).Run()
	return ok, err
}
