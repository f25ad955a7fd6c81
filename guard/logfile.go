package guard

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// SetupLogging points the standard logger at stdout, and additionally at an
// append-mode log file inside logDir when logDir is non-empty.
func SetupLogging(fs afero.Fs, logDir string) {
	if logDir == "" {
		log.SetOutput(os.Stdout)
		return
	}
	if err := fs.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("Failed to create log directory: %v", err)
		log.SetOutput(os.Stdout)
		return
	}
	logFilePath := filepath.Join(logDir, "fsguard.log")
	logFile, err := fs.OpenFile(logFilePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o660)
	if err != nil {
		log.Printf("Failed to open log for writing: %v", err)
		log.SetOutput(os.Stdout)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
}
