package qemu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
)

var execCommand = exec.Command

// ImageInfo is the subset of `qemu-img info` the VM controller needs.
type ImageInfo struct {
	Format      string `json:"format"`
	VirtualSize int64  `json:"virtual-size"`
}

// GetImageInfo executes `qemu-img info` on a disk image prepared by a test.
var GetImageInfo = func(imagePath string) (*ImageInfo, error) {
	cmd := execCommand("qemu-img", "info", "--output=json", imagePath)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to get image info for %s: %w", imagePath, err)
	}

	var info ImageInfo
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("failed to parse qemu-img info output: %w", err)
	}
	if info.Format == "" {
		return nil, fmt.Errorf("qemu-img reported no format for %s", imagePath)
	}

	return &info, nil
}
