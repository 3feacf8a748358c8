package logging

import (
	"os"
	"path/filepath"

	"github.com/dthanhvu03/threadsauto-sub000/internal/config"
)

const filePrefix = "threadsauto_"

// Config holds logging configuration.
type Config struct {
	Enabled  bool
	Level    string
	MaxFiles int
	// Command is the subcommand being executed, used in the file name.
	Command string
	PID     int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		MaxFiles: 10,
		Command:  filepath.Base(os.Args[0]),
		PID:      os.Getpid(),
	}
}

// FromGlobalConfig creates a logging Config from the global configuration.
// debug forces the debug level and quiet forces error; debug wins.
func FromGlobalConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = config.GetBool("logging_enabled", false)
	cfg.Level = config.Get("logging_level", "info")
	cfg.MaxFiles = config.GetInt("logging_max_files", 10)
	switch {
	case config.GetBool("debug", false):
		cfg.Level = "debug"
	case config.GetBool("quiet", false):
		cfg.Level = "error"
	}
	return cfg
}

// LogDir returns {state_dir}/logs, falling back to a directory under
// os.TempDir when the state dir is not writable.
func LogDir() (string, error) {
	if stateDir := config.Get("state_dir", ""); stateDir != "" {
		logDir := filepath.Join(stateDir, "logs")
		if err := os.MkdirAll(logDir, 0o700); err == nil && testFileWrite(logDir) {
			return logDir, nil
		}
	}
	tempBase := filepath.Join(os.TempDir(), "threadsauto", "logs")
	if err := os.MkdirAll(tempBase, 0o700); err != nil {
		return "", err
	}
	return tempBase, nil
}

func testFileWrite(dir string) bool {
	tmp := filepath.Join(dir, ".write_test")
	f, err := os.Create(tmp)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(tmp)
	return true
}
