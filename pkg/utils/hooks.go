package utils

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// ExecuteHooks runs all executable *.sh scripts in dir in lexical order,
// passing env on top of the current environment. A missing dir is not an error.
// The first failing hook stops the sequence.
func ExecuteHooks(ctx context.Context, dir string, env []string, logger *slog.Logger) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil // No hooks dir, that's fine
	}
	if err != nil {
		return fmt.Errorf("read hooks dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sh") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		scriptPath := filepath.Join(dir, name)
		logger.Info("Running hook", "script", name)

		cmd := exec.CommandContext(ctx, scriptPath)
		cmd.Env = append(os.Environ(), env...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			return fmt.Errorf("hook %s failed: %w", name, err)
		}
	}
	return nil
}
