package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/filevault/internal/client/client"
	"github.com/dmitrijs2005/filevault/internal/client/config"
	"github.com/dmitrijs2005/filevault/internal/client/session"
	"github.com/dmitrijs2005/filevault/internal/common"
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

const usageText = `usage: filevault [-a url] [-t token] [-c config] <command> [args]

commands:
  login <username>                          sign in and remember the token
  logout                                    forget the saved token
  upload [-name n] [-desc d] [-type mime] <project> <path>
  ls <project>                              list files of a project
  info <file-id>                            show one file
  link [-preview] <file-id>                 print a 60s download link
  download [-o path] [-preview] <file-id>   fetch a file ("-o -" for stdout)
  rm <file-id>                              delete a file
  describe <file-id> <text...>              replace the description
  usage                                     show storage used and the ceiling
  purge [-yes]                              delete all of your files
`

type App struct {
	config   *config.Config
	api      *client.Client
	sessions session.Store
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(c *config.Config, api *client.Client, sessions session.Store, in io.Reader, out io.Writer) *App {
	return &App{config: c, api: api, sessions: sessions, reader: bufio.NewReader(in), out: out}
}

// Run executes one command. args starts with the command name.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usageText)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usageText)
		return nil
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.logout(ctx)
	}

	if err := a.authenticate(ctx); err != nil {
		return err
	}

	switch cmd {
	case "upload":
		return a.upload(ctx, rest)
	case "ls", "list":
		return a.list(ctx, rest)
	case "info":
		return a.info(ctx, rest)
	case "link":
		return a.link(ctx, rest)
	case "download", "get":
		return a.download(ctx, rest)
	case "rm", "delete":
		return a.remove(ctx, rest)
	case "describe":
		return a.describe(ctx, rest)
	case "usage":
		return a.usage(ctx)
	case "purge":
		return a.purge(ctx, rest)
	default:
		fmt.Fprint(a.out, usageText)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

// authenticate picks the token from config or, failing that, the saved
// session for this server.
func (a *App) authenticate(ctx context.Context) error {
	if a.config.Token != "" {
		a.api.SetToken(a.config.Token)
		return nil
	}

	s, err := a.sessions.Load(ctx, a.api.BaseURL())
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("%w: not logged in to %s, run `filevault login <username>`", common.ErrUnauthorized, a.api.BaseURL())
	}
	if err != nil {
		return err
	}
	a.api.SetToken(s.Token)
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUsage}, args...)...)
}
