package environ

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Render materializes a config into the form the provisioning backend
// consumes. Output is deterministic: equal configs render byte-identical
// (fixed field order, sorted map keys, trailing newline), so rendered files
// diff cleanly in CI.
func Render(cfg EnvironmentConfig) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render environment %s: %w", cfg.Name, err)
	}

	return append(data, '\n'), nil
}

// WriteRendered writes the rendered config to <dir>/<name>.json via a
// temp-file rename so readers never observe a partial write. It returns
// the written path.
func WriteRendered(dir string, cfg EnvironmentConfig) (string, error) {
	data, err := Render(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create render dir %s: %w", dir, err)
	}

	target := filepath.Join(dir, cfg.Name+".json")
	tmp, err := os.CreateTemp(dir, "."+cfg.Name+"-*.json.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp render file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write rendered environment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close rendered environment: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move rendered environment into place: %w", err)
	}

	return target, nil
}
