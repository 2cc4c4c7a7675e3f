package virt

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

const (
	// LogFileName is the controller log the log validator classifies.
	LogFileName = "livemedia.log"
	// InstallLogFileName receives the guest serial console.
	InstallLogFileName = "virt-install.log"

	DefaultRAM     = 1024
	DefaultTimeout = 60 * time.Minute
)

// Configuration describes one test VM.
type Configuration struct {
	BootImage  string
	KsPaths    []string
	KernelArgs []string
	TestName   string
	TempDir    string
	LogPath    string
	RAM        int
	VNC        bool
	BootArgs   []string
	Timeout    time.Duration
	DiskPaths  []string
	Networks   []string
	RunnerArgs []string
	QemuBinary string
	DryRun     bool
}

// NewConfiguration returns a configuration with default RAM and timeout and
// the logs placed in tempDir.
func NewConfiguration(bootImage string, ksPaths []string, testName, tempDir string) *Configuration {
	return &Configuration{
		BootImage:  bootImage,
		KsPaths:    ksPaths,
		TestName:   testName,
		TempDir:    tempDir,
		LogPath:    filepath.Join(tempDir, LogFileName),
		RAM:        DefaultRAM,
		Timeout:    DefaultTimeout,
		QemuBinary: "qemu-system-x86_64",
	}
}

// InstallLogPath returns the file holding the guest console output.
func (c *Configuration) InstallLogPath() string {
	return filepath.Join(c.TempDir, InstallLogFileName)
}

// PidPath returns the pidfile qemu writes.
func (c *Configuration) PidPath() string {
	return filepath.Join(c.TempDir, "qemu.pid")
}

// WriteTable prints the configuration as a two column table.
func (c *Configuration) WriteTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"SETTING", "VALUE"})

	rows := [][]string{
		{"Test", c.TestName},
		{"Boot image", c.BootImage},
		{"Kickstart", strings.Join(c.KsPaths, "\n")},
		{"Kernel args", strings.Join(c.KernelArgs, " ")},
		{"RAM (MiB)", strconv.Itoa(c.RAM)},
		{"Timeout", c.Timeout.String()},
		{"VNC", fmt.Sprintf("%t", c.VNC)},
		{"Disks", strings.Join(c.DiskPaths, "\n")},
		{"Networks", strings.Join(c.Networks, " ")},
		{"Boot args", strings.Join(c.BootArgs, " ")},
		{"Runner args", strings.Join(c.RunnerArgs, " ")},
		{"Temp dir", c.TempDir},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}
