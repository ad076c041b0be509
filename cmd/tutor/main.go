package main

import (
	"fmt"
	"os"
	"strings"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "--version", "version":
		fmt.Println("tutor", version)
		return
	case "solve":
		err = runSolve(args)
	case "serve":
		err = runServe(args)
	case "doctor":
		err = runDoctor(args)
	case "service":
		err = runService(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'tutor --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`tutor - multi-agent homework solver

USAGE:
    tutor <COMMAND> [FLAGS] [PROBLEM]

COMMANDS:
    solve       Solve one problem with every agent and print the answers
    serve       Run the WebSocket gateway
    doctor      Run health checks on your setup
    service     Manage the gateway as a system service
                Subcommands: install, uninstall, status
    version     Print the version

SOLVE FLAGS:
    -s, --subject NAME   math, physics, chemistry or diary (default: math)
    --image PATH         Attach an image file or a data: URL
    --agent NAME         Only print this agent (speed, socratic, notebook, perplexity)
    --tui                Show the live multi-pane view
    --speak              Play the spoken summary when it is ready
    --quiz               Generate a practice question after solving
    --no-enrich          Skip the spoken summary
    -                    Read the problem from stdin

SERVE FLAGS:
    --addr HOST:PORT     Listen address (overrides gateway.addr)

GLOBAL FLAGS:
    -h, --help           Show this help message
    --config PATH        Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (optional)
    Environment: TUTORAI_* variables override config
    API key:     GEMINI_API_KEY or TUTORAI_LLM_API_KEY

EXAMPLES:
    tutor solve "Giải phương trình x^2 - 5x + 6 = 0"
    tutor solve -s physics --image bai3.png --tui
    echo "Cân bằng: Fe + O2 -> Fe3O4" | tutor solve -s chemistry -
    tutor serve --config /etc/tutor/config.yaml
    tutor service install --config /etc/tutor/config.yaml
    tutor doctor`)
}

// configPath resolves --config from args, then TUTORAI_CONFIG, then the
// working directory default.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	if p := os.Getenv("TUTORAI_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
