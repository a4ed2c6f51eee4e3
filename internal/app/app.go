package app

import (
	"fmt"
	"os"
	"strings"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "version", "--version":
		fmt.Println(Version)
		return 0
	case "health":
		return runHealth(args[1:])
	case "import", "run-once":
		return runImport(args[1:])
	case "schedule":
		return runSchedule(args[1:])
	case "serve":
		return runServe(args[1:])
	case "runs":
		return runRuns(args[1:])
	case "seed":
		return runSeed(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "token":
		return runToken(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "bookimport CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  bookimport <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  import     Run one import now")
	fmt.Fprintln(os.Stderr, "  run-once   Alias for import")
	fmt.Fprintln(os.Stderr, "  schedule   Run imports on IMPORT_SCHEDULE until interrupted")
	fmt.Fprintln(os.Stderr, "  serve      Start the admin API and the import scheduler")
	fmt.Fprintln(os.Stderr, "  runs       List recent import runs")
	fmt.Fprintln(os.Stderr, "  seed       Insert the starter catalog")
	fmt.Fprintln(os.Stderr, "  validate   Validate book feed JSON files against the feed schema")
	fmt.Fprintln(os.Stderr, "  token      Generate an admin API token and its bcrypt hash")
	fmt.Fprintln(os.Stderr, "  daemon     Manage the bookimport systemd service")
	fmt.Fprintln(os.Stderr, "  version    Print the build version")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"bookimport <command> -h\" for command-specific flags.")
}
