package app

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildServeUnitFile(t *testing.T) {
	t.Parallel()

	unit := buildServeUnitFile(serveUnit{
		User:    "books",
		WorkDir: "/srv/bookimport",
		Binary:  "/usr/local/bin/bookimport",
		EnvFile: "/srv/bookimport/.env",
		Port:    9000,
	})

	for _, want := range []string{
		"User=books",
		"WorkingDirectory=/srv/bookimport",
		"ExecStart=/usr/local/bin/bookimport serve --env /srv/bookimport/.env --host 0.0.0.0 --port 9000\n",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(unit, want) {
			t.Fatalf("unit file missing %q:\n%s", want, unit)
		}
	}
	if strings.Contains(unit, "--no-schedule") {
		t.Fatalf("unexpected --no-schedule in unit file")
	}
}

func TestBuildServeUnitFileNoSchedule(t *testing.T) {
	t.Parallel()

	unit := buildServeUnitFile(serveUnit{User: "root", WorkDir: "/tmp", Binary: "/bin/bookimport", EnvFile: "/tmp/.env", Port: 8090, NoSchedule: true})
	if !strings.Contains(unit, "--port 8090 --no-schedule\n") {
		t.Fatalf("expected --no-schedule in ExecStart:\n%s", unit)
	}
}

func TestValidatePort(t *testing.T) {
	t.Parallel()

	for _, port := range []int{0, -1, 65536} {
		if err := validatePort(port, "--port"); err == nil {
			t.Fatalf("expected error for port %d", port)
		}
	}
	if err := validatePort(8090, "--port"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveWorkDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	got, err := resolveWorkDir(dir)
	if err != nil {
		t.Fatalf("resolveWorkDir failed: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %s, got %s", dir, got)
	}

	file := filepath.Join(dir, "file.txt")
	mustWriteFile(t, file, "x")
	if _, err := resolveWorkDir(file); err == nil {
		t.Fatalf("expected error for a regular file")
	}
}
