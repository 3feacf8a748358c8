package logging

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

type logFile struct {
	path    string
	modTime time.Time
}

// rotate keeps at most maxFiles threadsauto_*.log files in dir, deleting the
// oldest by modification time. Other files are never touched.
func rotate(dir string, maxFiles int) error {
	if maxFiles <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var files []logFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || filepath.Ext(name) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}
	excess := len(files) - maxFiles
	if excess <= 0 {
		return nil
	}

	slices.SortFunc(files, func(a, b logFile) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return strings.Compare(a.path, b.path)
	})
	var errs []error
	for _, f := range files[:excess] {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
