// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml and initialize session storage",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// authCommand handles the Music Service session
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Sign in to the Music Service and manage the session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in through the browser",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser redirect",
						Value: authTimeout,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "status",
				Usage: "Show the session state",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
				},
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Force a token refresh",
				Action: r.AuthRefresh,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and clear stored tokens",
				Action: r.AuthLogout,
			},
		},
	}
}

// devicesCommand lists output devices
func devicesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List playback devices",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "csv", Usage: "Output CSV"},
			&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
		},
		Action: r.Devices,
	}
}

// playerCommand handles playback intents
func playerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "player",
		Aliases: []string{"p"},
		Usage:   "Control playback on the active device",
		Commands: []*cli.Command{
			{
				Name:   "activate",
				Usage:  "Find or wake a playback device",
				Action: r.PlayerActivate,
			},
			{
				Name:      "play",
				Usage:     "Play one or more track URIs; the first plays now, the rest are queued",
				ArgsUsage: "<uri> [uri...]",
				Action:    r.PlayerPlay,
			},
			{
				Name:   "pause",
				Usage:  "Pause playback",
				Action: r.PlayerPause,
			},
			{
				Name:   "resume",
				Usage:  "Resume playback",
				Action: r.PlayerResume,
			},
			{
				Name:   "next",
				Usage:  "Skip to the next track",
				Action: r.PlayerNext,
			},
			{
				Name:    "prev",
				Aliases: []string{"previous"},
				Usage:   "Restart the track, or skip back when near its start",
				Action:  r.PlayerPrevious,
			},
			{
				Name:  "seek",
				Usage: "Seek to a position (seconds or m:ss)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "position"},
				},
				Action: r.PlayerSeek,
			},
			{
				Name:   "shuffle",
				Usage:  "Toggle shuffle",
				Action: r.PlayerShuffle,
			},
			{
				Name:  "repeat",
				Usage: "Set repeat mode (off, track, context)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "mode"},
				},
				Action: r.PlayerRepeat,
			},
			{
				Name:  "volume",
				Usage: "Set volume (0-100)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "percent"},
				},
				Action: r.PlayerVolume,
			},
			{
				Name:  "status",
				Usage: "Show what is playing",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
				},
				Action: r.PlayerStatus,
			},
		},
	}
}

// tuiCommand launches the now-playing TUI
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Interactive now-playing view",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address while the TUI runs (e.g. 127.0.0.1:9090)",
			},
		},
		Action: r.TUI,
	}
}
