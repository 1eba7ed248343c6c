package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the on-disk layout under the db path.
type Paths struct {
	DB    string
	Store string
	State string
	Audit string
	Tel   string
	Logs  string
	Crash string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		// base
		DB: dbPath,

		// mains
		Store: filepath.Join(dbPath, "store"),

		// state
		State: statePath,
		Audit: filepath.Join(statePath, "audit"),
		Tel:   filepath.Join(statePath, "telemetry"),
		Logs:  filepath.Join(statePath, "logs"),
		Crash: filepath.Join(statePath, "crash"),
	}
}

// LogFile returns <db>/state/logs/<name> and creates the logs directory.
func LogFile(dbPath, name string) (string, error) {
	dir := PathsFor(dbPath).Logs
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create path %s: %w", dir, err)
	}
	return filepath.Join(dir, name), nil
}
