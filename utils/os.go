package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"venq/common"
)

const (
	venqDir = "venq"
)

// GetOrCreateDefaultDataDir resolves the directory holding queue files and
// the sqlite database when no explicit data dir is configured.
func GetOrCreateDefaultDataDir() (string, error) {
	possiblePaths := getAllPossibleDataDirs()

	// Check for already existing data dirs first, as the OS settings (e.g., env vars)
	// might have changed, so we need to make sure we won't miss the existing data
	var existingPaths []string
	for _, path := range possiblePaths {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			existingPaths = append(existingPaths, path)
		}
	}

	// If multiple data dirs exist, bail out - user needs to resolve manually
	if len(existingPaths) > 1 {
		return "", fmt.Errorf("multiple data directories found at: %v. Please remove duplicates manually", existingPaths)
	}

	if len(existingPaths) == 1 {
		return existingPaths[0], nil
	}

	// No existing data found, create new dir at the preferred location
	preferredPath := getPreferredDataDir()
	if err := os.MkdirAll(preferredPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", preferredPath, err)
	}

	return preferredPath, nil
}

func getAllPossibleDataDirs() []string {
	var paths []string

	switch runtime.GOOS {
	case common.WindowsOS:
		if appData := os.Getenv("APPDATA"); appData != "" {
			paths = append(paths, toDataDirPath(appData))
		}
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			paths = append(paths, toDataDirPath(localAppData))
		}
		if homeDir, _ := os.UserHomeDir(); homeDir != "" {
			paths = append(paths, toDataDirPath(homeDir))
		}
	case common.MacOS:
		if homeDir, _ := os.UserHomeDir(); homeDir != "" {
			paths = append(paths, toDataDirPath(filepath.Join(homeDir, "Library", "Application Support")))
			paths = append(paths, toDataDirPath(homeDir)) // fallback location
		}
	case common.LinuxOS:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			paths = append(paths, toDataDirPath(xdgData))
		}
		if homeDir, _ := os.UserHomeDir(); homeDir != "" {
			paths = append(paths, toDataDirPath(filepath.Join(homeDir, ".local", "share")))
			paths = append(paths, toDataDirPath(homeDir)) // fallback location
		}
	}

	return paths
}

func getPreferredDataDir() string {
	switch runtime.GOOS {
	case common.WindowsOS:
		if appData := os.Getenv("APPDATA"); appData != "" {
			return toDataDirPath(appData)
		}
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return toDataDirPath(localAppData)
		}
		if homeDir, _ := os.UserHomeDir(); homeDir != "" {
			return toDataDirPath(homeDir)
		}
	case common.MacOS:
		if homeDir, _ := os.UserHomeDir(); homeDir != "" {
			return toDataDirPath(filepath.Join(homeDir, "Library", "Application Support"))
		}
	case common.LinuxOS:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return toDataDirPath(xdgData)
		}
		if homeDir, _ := os.UserHomeDir(); homeDir != "" {
			return toDataDirPath(filepath.Join(homeDir, ".local", "share"))
		}
	}

	return toDataDirPath("")
}

func toDataDirPath(dataDir string) string {
	return filepath.Join(dataDir, venqDir)
}
