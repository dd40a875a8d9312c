// Package cli is the exoskull command line: the long-running agent (`run`)
// plus one-shot commands that act on the same store.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/BGMLAI/exoskull/internal/agent"
	"github.com/BGMLAI/exoskull/internal/api"
	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/config"
	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/BGMLAI/exoskull/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// shutdownTimeout bounds how long `run` waits for background tasks.
const shutdownTimeout = 10 * time.Second

// Runtime is what the commands operate on. main wires it.
type Runtime struct {
	Config *config.Config
	Agent  *agent.Agent
	Hub    *api.WebSocketHub
	Logger *logging.Logger
	Crash  *logging.CrashReporter

	// Stdin is read for the login email and, when it is not a terminal,
	// the password.
	Stdin io.Reader
	// ReadPassword reads a password without echo. Defaults to the terminal.
	ReadPassword func() (string, error)
}

// NewApp creates the CLI application with all commands.
func NewApp(rt *Runtime) *cli.App {
	if rt.Logger == nil {
		rt.Logger = logging.Nop()
	}
	if rt.Stdin == nil {
		rt.Stdin = os.Stdin
	}
	if rt.ReadPassword == nil {
		rt.ReadPassword = terminalPassword
	}

	app := &cli.App{
		Name:    "exoskull",
		Usage:   "Desktop agent: screen recall, folder sync, dictation",
		Version: Version,
		Commands: []*cli.Command{
			runCmd(rt),
			loginCmd(rt),
			logoutCmd(rt),
			statusCmd(rt),
			syncCmd(rt),
			recallCmd(rt),
			foldersCmd(rt),
			uploadCmd(rt),
			queueCmd(rt),
			exclusionsCmd(rt),
			settingsCmd(rt),
		},
	}
	// Errors are printed by main
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// runCmd starts the agent and the local control API until interrupted.
func runCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the agent in the foreground",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if rt.Hub != nil {
				go func() {
					if rt.Crash != nil {
						defer rt.Crash.Guard("websocket-hub")
					}
					rt.Hub.Run(ctx)
				}()
			}
			rt.Agent.Start(ctx)

			var serveErr error
			if rt.Config.Server.Enabled {
				srv := api.NewServer(rt.Agent, rt.Hub, rt.Logger.Named("api"))
				serveErr = srv.Serve(ctx, controlAddr(rt.Config))
			} else {
				<-ctx.Done()
			}

			rt.Logger.Info("Shutting down gracefully...")
			rt.Agent.Shutdown(shutdownTimeout)
			if serveErr != nil {
				return outputError(serveErr)
			}
			rt.Logger.Info("exoskull stopped")
			return nil
		},
	}
}

func loginCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in to the remote service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email (prompted when omitted)"},
		},
		Action: func(c *cli.Context) error {
			in := bufio.NewReader(rt.Stdin)
			email := c.String("email")
			if email == "" {
				fmt.Fprint(c.App.Writer, "Email: ")
				line, err := in.ReadString('\n')
				if err != nil && line == "" {
					return outputError(apperr.Config("email is required"))
				}
				email = strings.TrimSpace(line)
			}

			fmt.Fprint(c.App.Writer, "Password: ")
			password, err := rt.ReadPassword()
			fmt.Fprintln(c.App.Writer)
			if err != nil {
				return outputError(apperr.Config("cannot read password: %v", err))
			}

			session, err := rt.Agent.Login(c.Context, email, password)
			if err != nil {
				return outputError(err)
			}
			color.New(color.FgGreen).Fprintf(c.App.Writer, "Logged in as %s\n", session.UserEmail)
			return nil
		},
	}
}

func logoutCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored session",
		Action: func(c *cli.Context) error {
			if err := rt.Agent.Logout(c.Context); err != nil {
				return outputError(err)
			}
			fmt.Fprintln(c.App.Writer, "Logged out")
			return nil
		},
	}
}

func statusCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show session, capture and queue state",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print raw JSON"},
		},
		Action: func(c *cli.Context) error {
			status, err := rt.Agent.Status(c.Context)
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, status)
			}
			printStatus(c.App.Writer, status, recallEnabled(c.Context, rt))
			return nil
		},
	}
}

func recallEnabled(ctx context.Context, rt *Runtime) bool {
	rs, err := rt.Agent.RecallSettings(ctx)
	return err == nil && rs.Enabled
}

func printStatus(w io.Writer, s agent.Status, recall bool) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(w, "Session:   ")
	if s.Auth.Authenticated {
		green.Fprintf(w, "logged in as %s\n", s.Auth.Email)
	} else {
		yellow.Fprintln(w, "not logged in")
	}

	cyan.Fprint(w, "Recall:    ")
	switch {
	case s.Recall:
		green.Fprint(w, "capturing")
	case recall:
		green.Fprint(w, "enabled")
	default:
		yellow.Fprint(w, "disabled")
	}
	fmt.Fprintf(w, " (%d captures, %d unsynced)\n", s.Captures.Total, s.Captures.Unsynced)

	cyan.Fprint(w, "Queue:     ")
	fmt.Fprintf(w, "%d pending, %d uploaded, %d failed\n",
		s.Queue[store.StatusPending], s.Queue[store.StatusUploaded], s.Queue[store.StatusFailed])
}

func syncCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Upload pending files and unsynced captures now",
		Action: func(c *cli.Context) error {
			result, err := rt.Agent.SyncNow(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, result)
		},
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if kind := apperr.KindOf(err); kind != "" {
		return cli.Exit(color.RedString("[%s] %s", kind, err.Error()), 1)
	}
	return cli.Exit(color.RedString("%s", err.Error()), 1)
}

// terminalPassword reads a password without echo, or one line when stdin
// is not a terminal.
func terminalPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseID(c *cli.Context) (int64, error) {
	if c.NArg() < 1 {
		return 0, apperr.Config("an id argument is required")
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Config("invalid id %q", c.Args().First())
	}
	return id, nil
}

func controlAddr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.Port))
}

// forward posts to the control API of a running agent. It reports false
// when no agent answers.
func forward(ctx context.Context, cfg *config.Config, path string) (bool, error) {
	if !cfg.Server.Enabled {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+controlAddr(cfg)+path, nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return true, fmt.Errorf("agent: %s", body.Error)
	}
	return true, nil
}
