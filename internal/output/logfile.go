package output

import (
	"os"
	"path/filepath"
)

// GetLogFilePath returns the path to the log file.
// If GROVE_LOG_FILE is set, uses that path.
// Otherwise, uses ~/.grove/logs/grove.log
func GetLogFilePath() string {
	if customPath := os.Getenv("GROVE_LOG_FILE"); customPath != "" {
		return customPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if we can't get home dir
		return "grove.log"
	}

	return filepath.Join(homeDir, ".grove", "logs", "grove.log")
}
