package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ckscraper/pkg/auth"
	errs "ckscraper/pkg/errors"
	"ckscraper/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// app carries the process streams and the values of the global flags
type app struct {
	in           io.Reader
	out          io.Writer
	errOut       io.Writer
	readPassword auth.PasswordReader
	newManager   func() (*auth.Manager, error)
	interactive  bool
	colorTerm    bool

	configFile string
	logLevel   string
	verbose    bool
	noColor    bool

	run runFlags
}

func newApp() *app {
	return &app{
		in:           os.Stdin,
		out:          os.Stdout,
		errOut:       os.Stderr,
		readPassword: auth.TerminalPassword,
		newManager:   auth.NewManager,
		interactive:  term.IsTerminal(int(os.Stderr.Fd())),
		colorTerm:    term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == "",
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ckscraper",
		Short: "List and download the files of kemono and coomer posts",
		Long: `ckscraper walks the posts of a creator (or the favorites of your account)
on a kemono or coomer site and lists or downloads their files.

Downloads resume where an earlier run stopped, files already on disk are
skipped, and a file named <name>.ignore keeps <name> from being fetched.

Actions:
  download-files  download every file of the selected posts
  list-files      print date, type, title and URL of every file
  list-collabs    print the handles mentioned in the posts
  list-links      print the links found in the posts`,
		Example: `  # List the files of a creator
  ckscraper -w kemono.su -s patreon -u 12345 -a list-files

  # Download only videos posted during March 2024, oldest first
  ckscraper -w coomer.su -u alice -a download-files --file-type video \
    --from-date "2024/03/31 23:59:59" --to-date "2024/03/01 00:00:00" --reverse-order

  # Download your favorites with a stored account
  ckscraper -w coomer.su -f -a download-files`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.SetColor(a.colorTerm && !a.noColor)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().NFlag() == 0 {
				return cmd.Help()
			}
			return a.runScrape(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default is $HOME/.config/ckscraper/config.yaml)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "show log output on the terminal")
	cmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")
	a.run.register(cmd)

	cmd.SetVersionTemplate(`ckscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &errs.Error{Type: errs.ErrorTypeConfig, Message: err.Error(), Err: err}
	})
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(newAuthCmd(a), newConfigCmd(a))
	return cmd
}

// execute runs the command line and returns the process exit code
func execute(ctx context.Context, a *app, args []string) int {
	ui.SetOutput(a.out, a.errOut)
	ui.SetColor(a.colorTerm)
	ui.SetQuiet(false)

	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return errs.ExitOK
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}

	var typed *errs.Error
	switch {
	case errors.Is(err, context.Canceled):
		ui.PrintError("Program stopped")
	case !errors.As(err, &typed):
		// cobra's own argument errors
		err = &errs.Error{Type: errs.ErrorTypeConfig, Message: err.Error(), Err: err}
		fallthrough
	default:
		ui.PrintError(err.Error())
	}

	if code := errs.ExitCode(err); code != errs.ExitConfig {
		return code
	}
	fmt.Fprintln(a.errOut, "Run 'ckscraper --help' for usage.")
	return errs.ExitConfig
}
