package config

import (
	"os"
	"path/filepath"
)

// GetUserConfigDir returns ~/.monkeyctl, creating no directories.
func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".monkeyctl"), nil
}

// GetProjectDir walks up from the working directory looking for a
// .monkeyctl or .git directory, falling back to the working directory.
func GetProjectDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up directory tree to find .git or .monkeyctl directory
	dir := wd
	for {
		monkeyctlDir := filepath.Join(dir, ".monkeyctl")
		if _, err := os.Stat(monkeyctlDir); err == nil {
			return dir, nil
		}

		gitDir := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitDir); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory, use current working directory
			return wd, nil
		}
		dir = parent
	}
}

// EnsureConfigDirs creates the user and project config directories if absent.
func EnsureConfigDirs(userConfigDir, projectDir string) error {
	if err := os.MkdirAll(userConfigDir, 0755); err != nil {
		return err
	}

	projectConfigDir := filepath.Join(projectDir, ".monkeyctl")
	return os.MkdirAll(projectConfigDir, 0755)
}
