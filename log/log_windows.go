//go:build windows

package log

import (
	"fmt"
	"os"
	"path/filepath"
)

func getDefaultDir() (string, error) {
	localAppData := os.Getenv("LOCALAPPDATA")
	if localAppData == "" {
		return "", fmt.Errorf("LOCALAPPDATA not set")
	}
	return filepath.Join(localAppData, "bioweaver", "logs"), nil
}
