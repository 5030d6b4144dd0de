// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdServe
	CmdAsk
	CmdClassify
	CmdStats
	CmdThreads
	CmdExport
	CmdConfig
	CmdVersion
)

// String returns the command name used in JSON envelopes.
func (c Command) String() string {
	switch c {
	case CmdServe:
		return "serve"
	case CmdAsk:
		return "ask"
	case CmdClassify:
		return "classify"
	case CmdStats:
		return "stats"
	case CmdThreads:
		return "threads"
	case CmdExport:
		return "export"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Provider   string
	Model      string
	JSON       bool
	Quiet      bool

	// ask
	Query     string
	ImagePath string
	FollowUp  bool
	ThreadID  string
	Plain     bool

	// serve
	Addr string

	// export
	Format string
	Output string
	Theme  string

	// Subcommand is the first positional argument of stats, threads and config.
	Subcommand string

	// Raw holds the remaining positional arguments.
	Raw []string
}

const usageText = `glance - explain selected text or images with an LLM
Version: %s

USAGE:
  glance [global flags] <command> [flags] [args]

COMMANDS:
  serve                 Run the HTTP API (default 127.0.0.1:8787)
  ask <text>            Analyze text and print the answer
  classify <text>       Show the content category without calling a provider
  stats [reset]         Show or reset usage statistics
  threads [list|show <id>|delete <id>|clear]
                        Manage stored threads
  export [id]           Export a thread (latest when id is omitted)
  config [show|path|validate|init]
                        Inspect the configuration
  version               Print version information
  help                  Show this help

GLOBAL FLAGS:
  --config <file>       Config file (.toml, .yaml or .json)
  --provider <name>     Override the provider (openai, anthropic)
  --model <name>        Override the model
  --json                Print a JSON envelope
  -q, --quiet           Suppress secondary output

ASK FLAGS:
  -i, --image <file>    Attach an image
  -f, --follow-up       Continue the latest thread (or --thread)
  -t, --thread <id>     Thread to continue
  --plain               Print the answer without markdown

SERVE FLAGS:
  --addr <host:port>    Listen address

EXPORT FLAGS:
  --format <fmt>        markdown, yaml, html or json (default markdown)
  -o, --output <file>   Write to file instead of stdout
  --theme <dark|light>  HTML theme

EXAMPLES:
  glance ask "What is 12 * 7?"
  glance ask --image chart.png "What trend does this show?"
  glance ask --follow-up "Explain the second step"
  glance export --format html -o thread.html
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("glance version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse parses os.Args and returns the command and args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv (without the program name).
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdHelp, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "serve", "server":
		parseServeArgs(&parsed, remaining)
		return CmdServe, parsed

	case "ask", "a":
		parseAskArgs(&parsed, remaining)
		return CmdAsk, parsed

	case "classify":
		parsed.Query = strings.Join(remaining, " ")
		return CmdClassify, parsed

	case "stats", "usage":
		parseSubcommand(&parsed, remaining)
		return CmdStats, parsed

	case "threads", "thread", "history":
		parseSubcommand(&parsed, remaining)
		return CmdThreads, parsed

	case "export":
		parseExportArgs(&parsed, remaining)
		return CmdExport, parsed

	case "config":
		parseSubcommand(&parsed, remaining)
		return CmdConfig, parsed

	case "version", "-v", "--version":
		return CmdVersion, parsed

	case "help", "-h", "--help":
		return CmdHelp, parsed

	default:
		// Anything else is a question: glance what is 2+2
		parseAskArgs(&parsed, append([]string{cmd}, remaining...))
		return CmdAsk, parsed
	}
}

// parseGlobalFlags extracts global flags and returns the remaining args.
// Global flags are only recognized before the command name.
func parseGlobalFlags(args []string) ([]string, Args) {
	var parsed Args

	i := 0
	for ; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "--json":
			parsed.JSON = true
		case arg == "-q" || arg == "--quiet":
			parsed.Quiet = true
		case arg == "--config" || arg == "--provider" || arg == "--model":
			if i+1 < len(args) {
				i++
				setGlobal(&parsed, strings.TrimPrefix(arg, "--"), args[i])
			}
		case strings.HasPrefix(arg, "--config="),
			strings.HasPrefix(arg, "--provider="),
			strings.HasPrefix(arg, "--model="):
			name, value, _ := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
			setGlobal(&parsed, name, value)
		default:
			return args[i:], parsed
		}
	}
	return nil, parsed
}

func setGlobal(a *Args, name, value string) {
	switch name {
	case "config":
		a.ConfigPath = value
	case "provider":
		a.Provider = strings.ToLower(value)
	case "model":
		a.Model = value
	}
}

// parseAskArgs parses ask command flags and the query words.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "-i", "--image":
			if i+1 < len(remaining) {
				i++
				args.ImagePath = remaining[i]
			}
		case "-t", "--thread":
			if i+1 < len(remaining) {
				i++
				args.ThreadID = remaining[i]
				args.FollowUp = true
			}
		case "-f", "--follow-up":
			args.FollowUp = true
		case "--plain":
			args.Plain = true
		case "--json":
			args.JSON = true
		case "--":
			query = append(query, remaining[i+1:]...)
			i = len(remaining)
		default:
			switch {
			case strings.HasPrefix(arg, "--image="):
				args.ImagePath = strings.TrimPrefix(arg, "--image=")
			case strings.HasPrefix(arg, "--thread="):
				args.ThreadID = strings.TrimPrefix(arg, "--thread=")
				args.FollowUp = true
			default:
				query = append(query, arg)
			}
		}
	}

	args.Query = strings.Join(query, " ")
}

// parseServeArgs parses serve command flags.
func parseServeArgs(args *Args, remaining []string) {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		switch {
		case arg == "--addr" && i+1 < len(remaining):
			i++
			args.Addr = remaining[i]
		case strings.HasPrefix(arg, "--addr="):
			args.Addr = strings.TrimPrefix(arg, "--addr=")
		}
	}
}

// parseExportArgs parses export command flags and the optional thread id.
func parseExportArgs(args *Args, remaining []string) {
	args.Format = "markdown"

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "--format":
			if i+1 < len(remaining) {
				i++
				args.Format = strings.ToLower(remaining[i])
			}
		case "-o", "--output":
			if i+1 < len(remaining) {
				i++
				args.Output = remaining[i]
			}
		case "--theme":
			if i+1 < len(remaining) {
				i++
				args.Theme = remaining[i]
			}
		case "--json":
			args.JSON = true
		default:
			switch {
			case strings.HasPrefix(arg, "--format="):
				args.Format = strings.ToLower(strings.TrimPrefix(arg, "--format="))
			case strings.HasPrefix(arg, "--output="):
				args.Output = strings.TrimPrefix(arg, "--output=")
			case strings.HasPrefix(arg, "--theme="):
				args.Theme = strings.TrimPrefix(arg, "--theme=")
			case !strings.HasPrefix(arg, "-") && args.ThreadID == "":
				args.ThreadID = arg
			}
		}
	}
}

// parseSubcommand takes the first positional as the subcommand.
func parseSubcommand(args *Args, remaining []string) {
	var rest []string
	for _, arg := range remaining {
		if arg == "--json" {
			args.JSON = true
			continue
		}
		rest = append(rest, arg)
	}
	if len(rest) > 0 {
		args.Subcommand = strings.ToLower(rest[0])
		rest = rest[1:]
	}
	args.Raw = rest
}

// Run executes cmd. Operational logs are only written by serve unless
// GLANCE_DEBUG is set.
func Run(ctx context.Context, cmd Command, args Args) error {
	if cmd != CmdServe && os.Getenv("GLANCE_DEBUG") == "" {
		log.SetOutput(io.Discard)
	}

	switch cmd {
	case CmdServe:
		return HandleServe(ctx, args)
	case CmdAsk:
		return HandleAsk(ctx, args, os.Stdout, os.Stderr)
	case CmdClassify:
		return HandleClassify(args, os.Stdout)
	case CmdStats:
		return HandleStats(ctx, args, os.Stdout)
	case CmdThreads:
		return HandleThreads(ctx, args, os.Stdout)
	case CmdExport:
		return HandleExport(ctx, args, os.Stdout)
	case CmdConfig:
		return HandleConfig(args, os.Stdout)
	case CmdVersion:
		if args.JSON {
			return NewJSONResponse("version", map[string]string{
				"version":    Version,
				"git_commit": GitCommit,
				"build_date": BuildDate,
			}).Print(os.Stdout)
		}
		PrintVersion()
		return nil
	default:
		PrintUsage()
		return nil
	}
}
