package virt

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"kslauncher/internal/util"
)

// execCommand is a variable to allow mocking of exec.Command in tests
var execCommand = exec.Command

// injectKickstart copies initrd into dstDir and appends a newc cpio archive
// holding ksPaths at its root, where inst.ks=file:/<name> finds them.
func injectKickstart(initrd, dstDir string, ksPaths []string) (string, error) {
	dst := filepath.Join(dstDir, "initrd.img")
	if err := util.CopyFile(initrd, dst, 0644); err != nil {
		return "", fmt.Errorf("failed to copy initrd: %w", err)
	}
	if len(ksPaths) == 0 {
		return dst, nil
	}

	stage := filepath.Join(dstDir, "ks-inject")
	if err := os.MkdirAll(stage, 0755); err != nil {
		return "", fmt.Errorf("failed to create kickstart staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	names := make([]string, 0, len(ksPaths))
	for _, ks := range ksPaths {
		copied, err := util.CopyPreserve(ks, stage)
		if err != nil {
			return "", fmt.Errorf("failed to stage kickstart: %w", err)
		}
		names = append(names, filepath.Base(copied))
	}

	var archive, stderr bytes.Buffer
	cmd := execCommand("cpio", "--quiet", "-o", "-H", "newc")
	cmd.Dir = stage
	cmd.Stdin = strings.NewReader(strings.Join(names, "\n") + "\n")
	cmd.Stdout = &archive
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to create kickstart archive: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(archive.Bytes()); err != nil {
		return "", fmt.Errorf("failed to append kickstart archive: %w", err)
	}
	return dst, nil
}
