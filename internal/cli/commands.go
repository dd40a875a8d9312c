package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/BGMLAI/exoskull/internal/agent"
	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/store"
)

// recallCmd groups the screen recall commands. start and stop go to a
// running agent when one answers; otherwise they flip the persisted flag
// that `run` resumes from.
func recallCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "recall",
		Usage: "Control and query screen recall",
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start periodic screen capture",
				Action: func(c *cli.Context) error {
					return toggleRecall(c, rt, true)
				},
			},
			{
				Name:  "stop",
				Usage: "Stop screen capture",
				Action: func(c *cli.Context) error {
					return toggleRecall(c, rt, false)
				},
			},
			{
				Name:      "search",
				Usage:     "Full-text search over captured screens",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum results (default 50)"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(apperr.Config("a search query is required"))
					}
					results, err := rt.Agent.SearchRecall(c.Context, c.Args().First(), c.Int("limit"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, results)
				},
			},
			{
				Name:  "timeline",
				Usage: "List captures, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Day to list (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "app", Aliases: []string{"a"}, Usage: "Only this application"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum rows (default 100)"},
					&cli.IntFlag{Name: "offset", Usage: "Rows to skip"},
				},
				Action: func(c *cli.Context) error {
					entries, err := rt.Agent.RecallTimeline(c.Context, c.String("date"), c.String("app"),
						c.Int("limit"), c.Int("offset"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, entries)
				},
			},
		},
	}
}

func toggleRecall(c *cli.Context, rt *Runtime, enable bool) error {
	path, verb := "/api/recall/stop", "stopped"
	if enable {
		path, verb = "/api/recall/start", "started"
	}

	handled, err := forward(c.Context, rt.Config, path)
	if err != nil {
		return outputError(err)
	}
	if handled {
		fmt.Fprintf(c.App.Writer, "Recall %s\n", verb)
		return nil
	}

	if err := rt.Agent.SetRecallEnabled(c.Context, enable); err != nil {
		return outputError(err)
	}
	if enable {
		fmt.Fprintln(c.App.Writer, "Recall enabled; capture runs while `exoskull run` is active")
	} else {
		fmt.Fprintln(c.App.Writer, "Recall disabled")
	}
	return nil
}

func foldersCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "folders",
		Usage: "Manage watched folders",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Watch a folder and upload new files",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(apperr.Config("a folder path is required"))
					}
					id, err := rt.Agent.AddWatchedFolder(c.Context, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]int64{"id": id})
				},
			},
			{
				Name:      "remove",
				Usage:     "Stop watching a folder",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := parseID(c)
					if err != nil {
						return outputError(err)
					}
					if err := rt.Agent.RemoveWatchedFolder(c.Context, id); err != nil {
						return outputError(err)
					}
					fmt.Fprintf(c.App.Writer, "Removed folder %d\n", id)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List watched folders",
				Action: func(c *cli.Context) error {
					folders, err := rt.Agent.WatchedFolders(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, folders)
				},
			},
		},
	}
}

func uploadCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Queue a single file for upload",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(apperr.Config("a file path is required"))
			}
			id, err := rt.Agent.UploadFile(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]int64{"id": id})
		},
	}
}

func queueCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Show the upload queue",
		Action: func(c *cli.Context) error {
			items, err := rt.Agent.UploadQueue(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, items)
		},
	}
}

func exclusionsCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "exclusions",
		Usage: "Manage recall exclusions",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Skip captures whose app or window title contains pattern",
				ArgsUsage: "<pattern>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: store.ExcludeAppName,
						Usage: "app_name or window_title"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(apperr.Config("a pattern is required"))
					}
					id, err := rt.Agent.AddExclusion(c.Context, c.Args().First(), c.String("type"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]int64{"id": id})
				},
			},
			{
				Name:      "remove",
				Usage:     "Delete an exclusion",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := parseID(c)
					if err != nil {
						return outputError(err)
					}
					if err := rt.Agent.RemoveExclusion(c.Context, id); err != nil {
						return outputError(err)
					}
					fmt.Fprintf(c.App.Writer, "Removed exclusion %d\n", id)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List exclusions",
				Action: func(c *cli.Context) error {
					exclusions, err := rt.Agent.Exclusions(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, exclusions)
				},
			},
		},
	}
}

func settingsCmd(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change settings",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print all settings",
				Action: func(c *cli.Context) error {
					settings, err := rt.Agent.Settings(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, settings)
				},
			},
			{
				Name:  "set",
				Usage: "Change one or more settings",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "auto-start", Usage: "Start the agent on login"},
					&cli.StringFlag{Name: "theme", Usage: "UI theme"},
					&cli.StringFlag{Name: "tts-provider", Usage: "system or cloud"},
					&cli.IntFlag{Name: "interval", Usage: "Recall capture interval in seconds"},
					&cli.StringFlag{Name: "storage-mode", Usage: "local, cloud or local+cloud"},
					&cli.IntFlag{Name: "button-dictation", Usage: "Mouse button for dictation"},
					&cli.IntFlag{Name: "button-tts", Usage: "Mouse button for read-aloud"},
					&cli.IntFlag{Name: "button-chat", Usage: "Mouse button for chat"},
				},
				Action: func(c *cli.Context) error {
					if err := applySettings(c, rt.Agent); err != nil {
						return outputError(err)
					}
					settings, err := rt.Agent.Settings(c.Context)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, settings)
				},
			},
		},
	}
}

// applySettings writes only the flags that were given.
func applySettings(c *cli.Context, a *agent.Agent) error {
	var u agent.SettingsUpdate
	if c.IsSet("auto-start") {
		v := c.Bool("auto-start")
		u.AutoStart = &v
	}
	if c.IsSet("theme") {
		v := c.String("theme")
		u.Theme = &v
	}
	if c.IsSet("tts-provider") {
		v := c.String("tts-provider")
		u.TTSProvider = &v
	}
	if err := a.UpdateSettings(c.Context, u); err != nil {
		return err
	}

	var interval *int
	var mode *string
	if c.IsSet("interval") {
		v := c.Int("interval")
		interval = &v
	}
	if c.IsSet("storage-mode") {
		v := c.String("storage-mode")
		mode = &v
	}
	if err := a.UpdateRecallSettings(c.Context, interval, mode); err != nil {
		return err
	}

	if c.IsSet("button-dictation") || c.IsSet("button-tts") || c.IsSet("button-chat") {
		b := a.MouseConfig(c.Context)
		if c.IsSet("button-dictation") {
			b.Dictation = c.Int("button-dictation")
		}
		if c.IsSet("button-tts") {
			b.TTS = c.Int("button-tts")
		}
		if c.IsSet("button-chat") {
			b.Chat = c.Int("button-chat")
		}
		return a.UpdateMouseConfig(c.Context, b)
	}
	return nil
}
