package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	dbmcp "github.com/querytools/db-mcp"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// runDoctor checks configuration, then actually dials the database and
// reports what an agent would see from test_connection.
func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	skipConnect := fs.Bool("no-connect", false, "Skip the live connectivity check")
	fs.Parse(os.Args[2:])

	useColor := isTTY(os.Stderr.Fd())
	return doctor(os.Stderr, useColor, *skipConnect)
}

func doctor(w io.Writer, useColor bool, skipConnect bool) error {
	fmt.Fprintf(w, "godbmcp %s\n\n", serverVersion)

	config, ok := doctorValidateConfig(w, useColor)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'godbmcp doctor' again.")
		return nil
	}
	if skipConnect {
		return nil
	}

	if config.Connection.ConnString == "" && config.Connection.Password == "" {
		config.Connection.Password = promptPassword(fmt.Sprintf("Password for %s: ", config.Connection.User))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connecting to %s ...\n", config.Connection.Redacted())

	logger := zerolog.New(io.Discard)
	d, err := dbmcp.New(config.Config, logger)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Connection parameters resolve: %v", err))
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	defer d.Close(context.Background())

	probe, err := d.TestConnection(ctx)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database reachable: %v", err))
		return nil
	}
	printCheck(w, useColor, true, fmt.Sprintf("Database reachable (%d ms)", probe.LatencyMs))
	fmt.Fprintf(w, "    server:   %s\n", probe.ServerVersion)
	fmt.Fprintf(w, "    user:     %s\n", probe.User)
	fmt.Fprintf(w, "    database: %s\n", probe.Database)
	fmt.Fprintf(w, "    tables:   %d\n", probe.TableCount)
	return nil
}

// doctorValidateConfig loads config plus env overrides and prints check
// results. Returns the config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool) (*dbmcp.ServerConfig, bool) {
	allPassed := true

	config, err := loadServerConfig()
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Configuration resolves: %v", err))
		return nil, false
	}
	printCheck(w, useColor, true, "Configuration resolves")

	switch config.Connection.Engine {
	case dbmcp.EnginePostgres, dbmcp.EngineVertica:
		printCheck(w, useColor, true, fmt.Sprintf("Engine kind is known (%s)", config.Connection.Engine))
	default:
		printCheck(w, useColor, false, fmt.Sprintf("Engine kind is known (got %q, want postgres or vertica)", config.Connection.Engine))
		allPassed = false
	}

	if config.Connection.ConnString == "" && (config.Connection.Host == "" || config.Connection.Database == "") {
		printCheck(w, useColor, false, "Connection target is set (need connstring, or host and database)")
		allPassed = false
	} else {
		printCheck(w, useColor, true, "Connection target is set")
	}

	regexOK := true
	for i, rule := range config.Query.TimeoutRules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("timeout_rules[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}
	if regexOK {
		printCheck(w, useColor, true, "All regex patterns compile")
	}

	return config, allPassed
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}

func isTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(password)
}
