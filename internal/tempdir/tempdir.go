package tempdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Keep levels decide what survives Cleanup.
const (
	KeepNothing = 0
	KeepLogs    = 1
	KeepAll     = 2
)

// Manager owns the temporary working directory of one test run.
type Manager struct {
	keepLevel int
	dir       string
}

// New creates <base>/kstest-<testName>.<random>.
func New(base string, keepLevel int, testName string) (*Manager, error) {
	if keepLevel < KeepNothing || keepLevel > KeepAll {
		return nil, fmt.Errorf("invalid keep level %d", keepLevel)
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp base directory: %w", err)
	}

	dir, err := os.MkdirTemp(base, fmt.Sprintf("kstest-%s.", testName))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	// qemu running as another user needs to read the image copies
	if err := os.Chmod(dir, 0755); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to set permissions on temp directory: %w", err)
	}

	return &Manager{keepLevel: keepLevel, dir: dir}, nil
}

// Dir returns the path of the working directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Cleanup removes the working directory according to the keep level.
func (m *Manager) Cleanup() error {
	switch m.keepLevel {
	case KeepAll:
		return nil
	case KeepLogs:
		return removeAllExceptLogs(m.dir)
	default:
		return os.RemoveAll(m.dir)
	}
}

func removeAllExceptLogs(dir string) error {
	var errs []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isKept(d.Name()) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err.Error())
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to remove temp files: %s", strings.Join(errs, "; "))
	}
	return nil
}

// isKept reports whether a file survives cleanup at KeepLogs.
func isKept(name string) bool {
	return strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".json")
}
