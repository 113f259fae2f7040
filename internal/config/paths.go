package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configFileName = "nodelock.yaml"

// ExecutableDir returns the directory containing the running binary.
// All relative artifact paths resolve against it so the app behaves the
// same regardless of the working directory it was launched from.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		resolved = exe
	}
	return filepath.Dir(resolved), nil
}

func configFilePath() string {
	if dir, err := ExecutableDir(); err == nil {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return configFileName
}

// resolvePaths makes every relative artifact path absolute, anchored at
// the executable directory.
func (c *Config) resolvePaths() error {
	dir, err := ExecutableDir()
	if err != nil {
		return err
	}
	c.License.TokenFile = resolveAgainst(dir, c.License.TokenFile)
	c.License.HistoryFile = resolveAgainst(dir, c.License.HistoryFile)
	c.License.PrivateKeyFile = resolveAgainst(dir, c.License.PrivateKeyFile)
	c.License.PublicKeyFile = resolveAgainst(dir, c.License.PublicKeyFile)
	c.Logging.FilePath = resolveAgainst(dir, c.Logging.FilePath)
	return nil
}

func resolveAgainst(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
