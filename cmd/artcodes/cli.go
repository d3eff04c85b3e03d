package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/artcodes/registry/internal/config"
	"github.com/artcodes/registry/internal/errors"
	"github.com/artcodes/registry/internal/ops"
	"github.com/artcodes/registry/internal/web"
)

// maxStdinBytes caps piped experience and marker definitions.
const maxStdinBytes = 16 * 1024 * 1024

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, log zerolog.Logger) *cli.App {
	app := &cli.App{
		Name:    "artcodes",
		Usage:   "Experience and marker registry",
		Version: Version,
		Commands: []*cli.Command{
			storeCmd(db, cfg),
			fetchCmd(db),
			listCmd(db),
			searchCmd(db),
			deleteCmd(db),
			purgeCmd(db),
			settingsCmd(db),
			exportCmd(db, cfg),
			importCmd(db, cfg),
			markerCmd(db, cfg),
			serveCmd(db, cfg, log),
		},
	}
	// Errors are returned to the caller instead of exiting, so tests can inspect them.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// addressFlags are shared by every command that addresses one experience.
func addressFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Experience name"},
	}
}

// address reads the experience ID from the first argument or the --name flag.
func address(c *cli.Context) (id, name string) {
	if c.NArg() > 0 {
		return c.Args().First(), ""
	}
	return "", c.String("name")
}

func storeCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "store",
		Usage: "Store an experience (reads the JSON definition from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Override the definition's name"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace"},
		},
		Action: func(c *cli.Context) error {
			def, err := readDefinition(c, "experience definition")
			if err != nil {
				return outputError(err)
			}
			if name := c.String("name"); name != "" {
				def["name"] = name
			}

			output, err := ops.Store(c.Context, db, cfg, ops.StoreInput{
				Definition: def,
				Mode:       ops.StoreMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func fetchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch an experience by ID or name",
		ArgsUsage: "[id]",
		Flags: append(addressFlags(),
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted experiences"},
			&cli.BoolFlag{Name: "no-markers", Usage: "Exclude markers from output"},
		),
		Action: func(c *cli.Context) error {
			id, name := address(c)
			input := ops.FetchInput{
				ID:             id,
				Name:           name,
				IncludeDeleted: c.Bool("include-deleted"),
			}
			if c.Bool("no-markers") {
				includeMarkers := false
				input.IncludeMarkers = &includeMarkers
			}

			output, err := ops.Fetch(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List experiences, most recently updated first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted experiences"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, db, ops.ListInput{
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func searchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search experience names, descriptions and marker titles",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted experiences"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Search(c.Context, db, ops.SearchInput{
				Query:          strings.Join(c.Args().Slice(), " "),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete an experience",
		ArgsUsage: "[id]",
		Flags:     addressFlags(),
		Action: func(c *cli.Context) error {
			id, name := address(c)
			output, err := ops.Delete(c.Context, db, ops.DeleteInput{ID: id, Name: name})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func purgeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted experiences",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			var input ops.PurgeInput
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(c.Context, db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func settingsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "settings",
		Usage:     "Show scanner detection settings derived from an experience's marker codes",
		ArgsUsage: "[id]",
		Flags:     addressFlags(),
		Action: func(c *cli.Context) error {
			id, name := address(c)
			output, err := ops.Settings(c.Context, db, ops.SettingsInput{ID: id, Name: name})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export experiences to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.artcodes/exports/<prefix>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "prefix", Usage: "File name prefix for the default path"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted experiences"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, db, cfg, ops.ExportInput{
				Path:           c.String("path"),
				Prefix:         c.String("prefix"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func importCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import experiences from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|rename"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, db, cfg, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

func markerCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	codeFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "code", Aliases: []string{"c"}, Required: true, Usage: "Marker code"}
	}

	return &cli.Command{
		Name:  "marker",
		Usage: "Manage single markers of an experience",
		Subcommands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "Create or replace a marker (reads the JSON marker from stdin)",
				ArgsUsage: "[id]",
				Flags: append(addressFlags(),
					&cli.StringFlag{Name: "code", Aliases: []string{"c"}, Usage: "Override the marker's code"},
				),
				Action: func(c *cli.Context) error {
					m, err := readDefinition(c, "marker")
					if err != nil {
						return outputError(err)
					}
					if code := c.String("code"); code != "" {
						m["code"] = code
					}

					id, name := address(c)
					output, err := ops.PutMarker(c.Context, db, cfg, ops.PutMarkerInput{ID: id, Name: name, Marker: m})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "fetch",
				Usage:     "Fetch a marker by code",
				ArgsUsage: "[id]",
				Flags:     append(addressFlags(), codeFlag()),
				Action: func(c *cli.Context) error {
					id, name := address(c)
					output, err := ops.FetchMarker(c.Context, db, ops.MarkerInput{ID: id, Name: name, Code: c.String("code")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a marker by code",
				ArgsUsage: "[id]",
				Flags:     append(addressFlags(), codeFlag()),
				Action: func(c *cli.Context) error {
					id, name := address(c)
					output, err := ops.RemoveMarker(c.Context, db, ops.MarkerInput{ID: id, Name: name, Code: c.String("code")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

func serveCmd(db *sql.DB, cfg *config.Config, log zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI for browsing experiences",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8420, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(db, cfg, Version, c.String("bind"), c.Int("port"), log)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv, log); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON writes result to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats an error as "[CODE] message" with exit status 1.
func outputError(err error) error {
	var aErr *errors.ArtcodesError
	if stderrors.As(err, &aErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readDefinition decodes a JSON object piped to the app's reader.
func readDefinition(c *cli.Context, what string) (map[string]any, error) {
	if !stdinHasData(c.App.Reader) {
		return nil, errors.NewInvalidRequest(what + " must be piped via stdin")
	}
	text, err := readStdin(c.App.Reader, maxStdinBytes)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if text == "" {
		return nil, errors.NewInvalidRequest(what + " is required")
	}

	var def map[string]any
	if err := json.Unmarshal([]byte(text), &def); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("%s must be a JSON object: %v", what, err))
	}
	if def == nil {
		return nil, errors.NewInvalidRequest(what + " must be a JSON object")
	}
	return def, nil
}

// stdinHasData reports whether r has piped data. Non-file readers always count.
func stdinHasData(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from r.
func readStdin(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("input exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
