package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - WEBDL_CONFIG_PATH: config file location (default: ~/.config/webdl.toml)
//   - WEBDL_HOME: base directory for webdl data (default: ~/.local/share/webdl)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"store_root":  filepath.Join(baseDir, "store"),
	}, nil
}

// getConfigPath returns the config file path, checking WEBDL_CONFIG_PATH first,
// then falling back to ~/.config/webdl.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("WEBDL_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "webdl.toml"), nil
}

// getBaseDir returns the data directory, checking WEBDL_HOME first,
// then falling back to the XDG default ~/.local/share/webdl.
func getBaseDir() (string, error) {
	if path := os.Getenv("WEBDL_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "webdl"), nil
}
