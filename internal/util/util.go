package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ParseSize converts a size string like "10G", "512M", "2048K" into bytes.
var ParseSize = func(sizeStr string) (int64, error) {
	var value int64
	var unit string

	// Try to parse with unit (e.g., "10G", "512M")
	n, err := fmt.Sscanf(sizeStr, "%d%s", &value, &unit)
	if err != nil || n != 2 {
		// If parsing with unit fails, try to parse as just a number (bytes)
		n, err = fmt.Sscanf(sizeStr, "%d", &value)
		if err != nil || n != 1 {
			return 0, fmt.Errorf("invalid size format '%s'. Expected format like '10G', '512M', or '2048'", sizeStr)
		}
		unit = "B"
	}

	unit = strings.ToUpper(unit)
	switch unit {
	case "K", "KB", "KIB":
		value *= 1024
	case "M", "MB", "MIB":
		value *= 1024 * 1024
	case "G", "GB", "GIB":
		value *= 1024 * 1024 * 1024
	case "T", "TB", "TIB":
		value *= 1024 * 1024 * 1024 * 1024
	case "", "B":
	default:
		return 0, fmt.Errorf("unknown size unit '%s' in '%s'", unit, sizeStr)
	}

	return value, nil
}

// ParseMemoryMiB parses a RAM size for the VM. A bare number is taken as MiB,
// which is how qemu's -m reads it.
func ParseMemoryMiB(sizeStr string) (int, error) {
	var plain int
	if n, err := fmt.Sscanf(sizeStr, "%d", &plain); err == nil && n == 1 && fmt.Sprint(plain) == sizeStr {
		return plain, nil
	}
	bytes, err := ParseSize(sizeStr)
	if err != nil {
		return 0, err
	}
	return int(bytes / (1024 * 1024)), nil
}

// FileExists checks if a file exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CopyFile copies a file from src to dst with the given file mode.
func CopyFile(src, dst string, mode os.FileMode) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return os.Chmod(dst, mode)
}

// CopyPreserve copies src into dstDir keeping its base name, mode and
// modification time. It returns the path of the copy.
func CopyPreserve(src, dstDir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", src)
	}

	dst := filepath.Join(dstDir, filepath.Base(src))
	if err := CopyFile(src, dst, info.Mode().Perm()); err != nil {
		return "", err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return "", err
	}
	return dst, nil
}
