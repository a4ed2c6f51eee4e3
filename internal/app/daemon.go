package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	daemonUnitName = "bookimport-serve.service"
	systemdUnitDir = "/etc/systemd/system"
)

type serveUnit struct {
	User       string
	WorkDir    string
	Binary     string
	EnvFile    string
	Port       int
	NoSchedule bool
}

func runDaemon(args []string) int {
	if len(args) == 0 {
		printDaemonUsage()
		return 2
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	switch action {
	case "help", "-h", "--help":
		printDaemonUsage()
		return 0
	case "install":
		return runDaemonInstall(args[1:])
	case "uninstall":
		return runDaemonUninstall(args[1:])
	case "start", "stop", "restart":
		return runDaemonServiceAction(action, args[1:], true)
	case "status":
		return runDaemonServiceAction(action, args[1:], false)
	default:
		fmt.Fprintf(os.Stderr, "unknown daemon action: %s\n\n", args[0])
		printDaemonUsage()
		return 2
	}
}

func runDaemonInstall(args []string) int {
	fs := flag.NewFlagSet("daemon install", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	defaultUser := strings.TrimSpace(os.Getenv("USER"))
	if defaultUser == "" {
		defaultUser = "root"
	}

	userName := fs.String("user", defaultUser, "Run the service as this Linux user")
	port := fs.Int("port", 8090, "Admin API port")
	workDir := fs.String("workdir", "", "Working directory holding the .env file (defaults to cwd)")
	binary := fs.String("binary", "", "Path to the bookimport binary (defaults to this executable)")
	noSchedule := fs.Bool("no-schedule", false, "Install the service without the cron scheduler")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon install does not accept positional args")
		return 2
	}
	if err := validatePort(*port, "--port"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if strings.TrimSpace(*userName) == "" {
		fmt.Fprintln(os.Stderr, "--user must not be empty")
		return 2
	}
	if err := requireRoot("install"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	resolvedWorkDir, err := resolveWorkDir(*workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve --workdir: %v\n", err)
		return 2
	}
	resolvedBinary, err := resolveBinary(*binary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve --binary: %v\n", err)
		return 2
	}

	unit := buildServeUnitFile(serveUnit{
		User:       strings.TrimSpace(*userName),
		WorkDir:    resolvedWorkDir,
		Binary:     resolvedBinary,
		EnvFile:    filepath.Join(resolvedWorkDir, ".env"),
		Port:       *port,
		NoSchedule: *noSchedule,
	})
	if err := writeUnitFile(daemonUnitName, unit); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", daemonUnitName, err)
		return 1
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}
	if err := runSystemctl("enable", daemonUnitName); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enable %s: %v\n", daemonUnitName, err)
		return 1
	}

	fmt.Printf("Installed %s\n", daemonUnitName)
	fmt.Println("The service is enabled on boot. Run `bookimport daemon start` to start it now.")
	return 0
}

func runDaemonUninstall(args []string) int {
	fs := flag.NewFlagSet("daemon uninstall", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon uninstall does not accept positional args")
		return 2
	}
	if err := requireRoot("uninstall"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := runSystemctl("stop", daemonUnitName); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to stop %s: %v\n", daemonUnitName, err)
	}
	if err := runSystemctl("disable", daemonUnitName); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to disable %s: %v\n", daemonUnitName, err)
	}

	unitPath := filepath.Join(systemdUnitDir, daemonUnitName)
	if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", unitPath, err)
		return 1
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}

	fmt.Printf("Removed %s\n", daemonUnitName)
	return 0
}

func runDaemonServiceAction(action string, args []string, requireRootPrivileges bool) int {
	fs := flag.NewFlagSet("daemon "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "daemon %s does not accept positional args\n", action)
		return 2
	}
	if requireRootPrivileges {
		if err := requireRoot(action); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	systemctlArgs := []string{action}
	if action == "status" {
		systemctlArgs = append(systemctlArgs, "--no-pager")
	}
	systemctlArgs = append(systemctlArgs, daemonUnitName)

	if err := runSystemctl(systemctlArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to %s %s: %v\n", action, daemonUnitName, err)
		return 1
	}
	return 0
}

func validatePort(port int, flagName string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", flagName)
	}
	return nil
}

func requireRoot(action string) error {
	if os.Geteuid() == 0 {
		return nil
	}
	return fmt.Errorf("daemon %s requires root privileges; run with sudo: sudo bookimport daemon %s", action, action)
}

func resolveWorkDir(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		trimmed = cwd
	}

	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("normalize path %q: %w", trimmed, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%q is not a directory", absPath)
	}
	return absPath, nil
}

func resolveBinary(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		exePath, err := os.Executable()
		if err != nil {
			return "", err
		}
		if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
			exePath = resolved
		}
		return exePath, nil
	}
	return filepath.Abs(trimmed)
}

func buildServeUnitFile(unit serveUnit) string {
	execStart := []string{
		unit.Binary, "serve",
		"--env", unit.EnvFile,
		"--host", "0.0.0.0",
		"--port", strconv.Itoa(unit.Port),
	}
	if unit.NoSchedule {
		execStart = append(execStart, "--no-schedule")
	}

	lines := []string{
		"[Unit]",
		"Description=Book import admin API and scheduler",
		"After=network.target postgresql.service",
		"",
		"[Service]",
		"Type=simple",
		"User=" + unit.User,
		"WorkingDirectory=" + unit.WorkDir,
		"ExecStart=" + strings.Join(execStart, " "),
		"Restart=on-failure",
		"RestartSec=5",
		"TimeoutStopSec=330",
		"",
		"[Install]",
		"WantedBy=multi-user.target",
		"",
	}
	return strings.Join(lines, "\n")
}

func writeUnitFile(name, content string) error {
	unitPath := filepath.Join(systemdUnitDir, name)
	return os.WriteFile(unitPath, []byte(content), 0o644)
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

func printDaemonUsage() {
	fmt.Fprintln(os.Stderr, "bookimport daemon")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  bookimport daemon <action> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Actions:")
	fmt.Fprintln(os.Stderr, "  install     Write the unit file, daemon-reload and enable it on boot")
	fmt.Fprintln(os.Stderr, "  uninstall   Stop, disable and remove the unit file")
	fmt.Fprintln(os.Stderr, "  start       Start the service")
	fmt.Fprintln(os.Stderr, "  stop        Stop the service")
	fmt.Fprintln(os.Stderr, "  restart     Restart the service")
	fmt.Fprintln(os.Stderr, "  status      Show service status")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Install flags:")
	fmt.Fprintln(os.Stderr, "  --user <name>      Service user (default: $USER)")
	fmt.Fprintln(os.Stderr, "  --port <n>         Admin API port (default: 8090)")
	fmt.Fprintln(os.Stderr, "  --workdir <path>   Directory holding .env (default: cwd)")
	fmt.Fprintln(os.Stderr, "  --binary <path>    bookimport binary (default: this executable)")
	fmt.Fprintln(os.Stderr, "  --no-schedule      Serve the admin API only")
}
