package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/retraceapp/retrace/internal/config"
	"github.com/retraceapp/retrace/internal/errors"
	"github.com/retraceapp/retrace/internal/mcp"
	"github.com/retraceapp/retrace/internal/pipeline"
	"github.com/retraceapp/retrace/internal/providers"
	"github.com/retraceapp/retrace/internal/store"
	"github.com/retraceapp/retrace/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.App {
	app := &cli.App{
		Name:    "retrace",
		Usage:   "Screen activity archive",
		Version: Version,
		Commands: []*cli.Command{
			runCmd(db, cfg, logger),
			searchCmd(db),
			timelineCmd(db),
			chunkCmd(db),
			webCmd(db, cfg),
			serveCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// runCmd creates the run command.
func runCmd(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start the capture pipeline (Ctrl-C to stop)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "interval", Usage: "Capture interval in seconds"},
			&cli.StringFlag{Name: "archive-dir", Usage: "Archive directory for exported documents"},
			&cli.StringFlag{Name: "chunk-dir", Usage: "Directory for encoded video chunks"},
			&cli.BoolFlag{Name: "active-window-only", Usage: "Recognize text only within the active window"},
		},
		Action: func(c *cli.Context) error {
			if n := c.Int("interval"); n > 0 {
				cfg.CaptureIntervalSec = n
			}
			if dir := c.String("archive-dir"); dir != "" {
				cfg.ArchiveDir = dir
			}
			if dir := c.String("chunk-dir"); dir != "" {
				cfg.ChunkDir = dir
			}
			if c.Bool("active-window-only") {
				cfg.ActiveWindowOnly = true
			}

			p := pipeline.New(cfg, db, pipeline.Deps{
				Source:     providers.NewFFmpegSource(),
				Meta:       providers.NewToolMeta(),
				Recognizer: providers.NewTesseractRecognizer(),
			}, logger)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := p.Start(ctx); err != nil {
				return outputError(err)
			}
			logger.Info("pipeline running",
				"interval_sec", cfg.CaptureIntervalSec,
				"archive_dir", cfg.ArchiveDir)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logger.Info("shutting down")
			p.Close()
			if err := p.Err(); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// searchCmd creates the search command.
func searchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search over recognized screen text",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum results"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("query is required"))
			}

			results, err := store.SearchText(db, c.Args().First(), c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"results": results,
				"count":   len(results),
			})
		},
	}
}

// timelineCmd creates the timeline command.
func timelineCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "timeline",
		Usage: "Show recent captures, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 50, Usage: "Maximum entries"},
		},
		Action: func(c *cli.Context) error {
			records, err := store.RecentCaptures(db, c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(records)
		},
	}
}

// chunkCmd creates the chunk command.
func chunkCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "chunk",
		Usage: "Locate the video chunk covering a point in time",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "at", Usage: "Timestamp (RFC 3339, default now)"},
		},
		Action: func(c *cli.Context) error {
			at := time.Now()
			if raw := c.String("at"); raw != "" {
				parsed, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return outputError(errors.NewInvalidRequest("at must be RFC 3339"))
				}
				at = parsed
			}

			chunk, err := store.ChunkForTime(db, at)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(chunk)
		},
	}
}

// webCmd creates the web command.
func webCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Start the local web viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind := cfg.WebBind
			if b := c.String("bind"); b != "" {
				bind = b
			}
			port := cfg.WebPort
			if p := c.Int("port"); p > 0 {
				port = p
			}

			srv := web.NewServer(db, cfg, Version, bind, port)
			return web.Run(srv)
		},
	}
}

// serveCmd creates the serve command (MCP over stdio).
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(db, cfg, Version)
		},
	}
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if rErr, ok := err.(*errors.RetraceError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", rErr.Code, rErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
