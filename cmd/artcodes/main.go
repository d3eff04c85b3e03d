package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/artcodes/registry/internal/config"
	"github.com/artcodes/registry/internal/db"
	"github.com/artcodes/registry/internal/logging"
	"github.com/artcodes/registry/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"store": true, "fetch": true, "list": true, "search": true,
	"delete": true, "purge": true, "settings": true,
	"export": true, "import": true, "marker": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func printBanner() {
	fmt.Println(`
    _         _                _
   / \   _ __| |_ ___ ___   __| | ___  ___
  / _ \ | '__| __/ __/ _ \ / _' |/ _ \/ __|
 / ___ \| |  | || (_| (_) | (_| |  __/\__ \
/_/   \_\_|   \__\___\___/ \__,_|\___||___/

  Experience and marker registry

  Usage: artcodes <command> [options]
         artcodes --help

  MCP server mode requires piped input.`)
}

func fatal(log zerolog.Logger, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need neither config nor database.
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, logging.Nop())
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	bootLog := logging.New(os.Stderr, "info")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal(bootLog, err, "could not determine home directory")
	}
	baseDir := filepath.Join(homeDir, config.DirName)

	cwd, err := os.Getwd()
	if err != nil {
		fatal(bootLog, err, "could not determine working directory")
	}

	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal(bootLog, err, "failed to load config")
	}
	log := logging.New(os.Stderr, cfg.LogLevel)

	database, err := db.Init(baseDir)
	if err != nil {
		fatal(log, err, "failed to initialize database")
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	if isCLIMode() {
		app := newCLIApp(database, cfg, log)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			database.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument on an interactive terminal: don't start the MCP server.
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'artcodes --help' for usage.\n")
		database.Close()
		os.Exit(1)
	}

	if err := mcp.Run(database, cfg, Version, log); err != nil {
		log.Error().Err(err).Msg("mcp server stopped")
		database.Close()
		os.Exit(1)
	}
}
