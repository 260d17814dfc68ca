package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "patternvec:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "patternvec",
		Usage: "Embed labeled source corpora with a pretrained encoder and search them by similarity",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file path",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug/info/warn/error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (console/json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "clone",
				Usage: "Clone every repository listed in a JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "repos",
						Usage: "JSON list of repositories (url, clone_url or html_url per entry)",
					},
					&cli.StringFlag{
						Name:  "dest",
						Usage: "directory receiving one subdirectory per repository",
					},
					&cli.BoolFlag{
						Name:  "exec-git",
						Usage: "shell out to the git binary instead of cloning in-process",
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "shallow clone depth (0 = full history)",
					},
				},
				Action: cloneAction,
			},
			{
				Name:  "embed",
				Usage: "Embed every file of a labeled corpus and write the two CSV tables",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "root",
						Usage: "corpus root; each subdirectory is a category",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "output directory for the CSV tables",
					},
					&cli.StringFlag{
						Name:  "ext",
						Usage: "file suffix to embed",
					},
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "CSV file name prefix",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "concurrent embed calls",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "SQLite database receiving the run (optional)",
					},
					&cli.StringFlag{
						Name:  "ignore-file",
						Usage: "gitignore-style file name honored below each category",
					},
				},
				Action: embedAction,
			},
			{
				Name:  "search",
				Usage: "Rank stored corpus files by similarity to a code file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "code-file",
						Usage:    "file holding the query code",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "pooling strategy (token_mean/summary_mean)",
						Value: "token_mean",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "maximum number of results",
						Value: 10,
					},
					&cli.StringFlag{
						Name:  "run",
						Usage: "run ID to search (default: latest)",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "only return files from this category",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "SQLite database holding the runs",
					},
				},
				Action: searchAction,
			},
			{
				Name:  "serve",
				Usage: "Start the MCP server on stdio",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Usage: "SQLite database holding the runs",
					},
				},
				Action: serveAction,
			},
			{
				Name:   "version",
				Usage:  "Print version and build information",
				Action: versionAction,
			},
		},
	}
}
