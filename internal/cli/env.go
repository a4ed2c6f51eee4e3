package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// envFileOverrides name variables that point at an env file and win over the --env flag.
var envFileOverrides = []string{"BOOKIMPORT_ENV_FILE", "HORSE_ENV_FILE"}

// EnvLoader loads a .env file chosen by the --env flag, an override variable, or a fallback.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers an --env flag on fs and returns the loader bound to it.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	return &EnvLoader{
		value:       fs.String("env", defaultPath, description),
		defaultPath: defaultPath,
	}
}

// Load overloads the process environment from the first readable candidate and returns its path.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	candidates := l.candidatePaths()
	for _, path := range candidates {
		if err := godotenv.Overload(path); err == nil {
			fmt.Fprintf(os.Stderr, "Loaded environment from: %s\n", path)
			return path, nil
		}
	}

	return "", fmt.Errorf("failed to load env file from any of %s", strings.Join(candidates, ", "))
}

func (l *EnvLoader) candidatePaths() []string {
	paths := make([]string, 0, len(envFileOverrides)+3)
	for _, envVar := range envFileOverrides {
		if custom := strings.TrimSpace(os.Getenv(envVar)); custom != "" {
			paths = append(paths, custom)
		}
	}

	requested := l.defaultPath
	if l.value != nil && strings.TrimSpace(*l.value) != "" {
		requested = strings.TrimSpace(*l.value)
	}
	paths = append(paths, requested)
	if base := filepath.Base(requested); base != "" && base != requested {
		paths = append(paths, base)
	}
	if requested != l.defaultPath {
		paths = append(paths, l.defaultPath)
	}

	deduped := paths[:0]
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if _, exists := seen[path]; exists {
			continue
		}
		seen[path] = struct{}{}
		deduped = append(deduped, path)
	}
	return deduped
}
