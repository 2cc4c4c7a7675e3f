package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kslauncher/internal/util"

	"gopkg.in/yaml.v3"
)

const (
	// AppName is the name of the application
	AppName = "kslauncher"
	// ConfigFileName is the defaults file looked up in the application directory
	ConfigFileName = "config.yaml"
	// DefaultTimeout bounds a single installation
	DefaultTimeout = 60 * time.Minute
	// DefaultRAM is the guest memory in MiB
	DefaultRAM = "1024"
	// DefaultQemuBinary is the emulator used to boot the installer
	DefaultQemuBinary = "qemu-system-x86_64"
	// DefaultTmpBase is where per-run temp directories are created
	DefaultTmpBase = "/var/tmp"
	// MaxKeepLevel keeps every file of the run
	MaxKeepLevel = 2
	// MinRAM is the smallest guest memory in MiB anaconda can start with
	MinRAM = 256
)

// userHomeDir is a variable to allow mocking in tests.
var userHomeDir = os.UserHomeDir

// Config holds the run configuration of a single kickstart test.
type Config struct {
	homeDir string

	TestName     string        `yaml:"-"`
	TestDir      string        `yaml:"test_dir"`
	BootImage    string        `yaml:"boot_image"`
	UpdatesImage string        `yaml:"updates_image"`
	KeepLevel    int           `yaml:"keep_level"`
	TmpBase      string        `yaml:"tmp_dir"`
	Timeout      time.Duration `yaml:"-"`
	RAM          string        `yaml:"ram"`
	VNC          bool          `yaml:"vnc"`
	QemuBinary   string        `yaml:"qemu"`
	DryRun       bool          `yaml:"dry_run"`
	Verbose      bool          `yaml:"verbose"`
	// Host names the machine in RESULT lines; empty means the hostname.
	Host string `yaml:"host"`
}

// New creates a new Config instance with defaults applied.
var New = func() (*Config, error) {
	var home string
	var err error

	// Check for the override environment variable first.
	// This is useful for testing.
	homeOverride := os.Getenv("KSTEST_HOME")
	if homeOverride != "" {
		home = homeOverride
	} else {
		home, err = userHomeDir()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.homeDir = home
	return cfg, nil
}

// Default returns a configuration with built-in defaults and no home directory.
func Default() *Config {
	return &Config{
		TestDir:    ".",
		TmpBase:    DefaultTmpBase,
		Timeout:    DefaultTimeout,
		RAM:        DefaultRAM,
		QemuBinary: DefaultQemuBinary,
	}
}

// GetAppDir returns the path to the application's hidden directory.
func (c *Config) GetAppDir() string {
	return filepath.Join(c.homeDir, "."+AppName)
}

// SetHomeDir sets the application's home directory.
func (c *Config) SetHomeDir(dir string) {
	c.homeDir = dir
}

// GetConfigPath returns the location of the defaults file.
func (c *Config) GetConfigPath() string {
	return filepath.Join(c.GetAppDir(), ConfigFileName)
}

// LoadFile merges values from a YAML file into c. An empty path means the
// defaults file in the application directory, which may be absent.
func (c *Config) LoadFile(path string) error {
	optional := false
	if path == "" {
		path = c.GetConfigPath()
		optional = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// timeout takes the same forms as the flag and KSTEST_TIMEOUT
	var file struct {
		Timeout string `yaml:"timeout"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if file.Timeout != "" {
		timeout, err := ParseTimeout(file.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q in %s: %w", file.Timeout, path, err)
		}
		c.Timeout = timeout
	}
	return nil
}

// ApplyEnv overrides values from KSTEST_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("KSTEST_TMPDIR"); v != "" {
		c.TmpBase = v
	}
	if v := os.Getenv("KSTEST_QEMU"); v != "" {
		c.QemuBinary = v
	}
	if v := os.Getenv("KSTEST_RAM"); v != "" {
		c.RAM = v
	}
	if v := os.Getenv("KSTEST_KEEP"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid KSTEST_KEEP %q: %w", v, err)
		}
		c.KeepLevel = level
	}
	if v := os.Getenv("KSTEST_TIMEOUT"); v != "" {
		timeout, err := ParseTimeout(v)
		if err != nil {
			return fmt.Errorf("invalid KSTEST_TIMEOUT %q: %w", v, err)
		}
		c.Timeout = timeout
	}
	if v := os.Getenv("KSTEST_DRY_RUN"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid KSTEST_DRY_RUN %q: %w", v, err)
		}
		c.DryRun = dryRun
	}
	return nil
}

// ParseTimeout accepts a Go duration ("90m") or a bare number of minutes.
func ParseTimeout(v string) (time.Duration, error) {
	if minutes, err := strconv.Atoi(v); err == nil {
		return time.Duration(minutes) * time.Minute, nil
	}
	return time.ParseDuration(v)
}

// SetTest accepts a test name or a path to the test's .sh or .ks.in file.
func (c *Config) SetTest(arg string) error {
	if arg == "" {
		return fmt.Errorf("no kickstart test given")
	}

	name := filepath.Base(arg)
	for _, suffix := range []string{".ks.in", ".sh"} {
		name = strings.TrimSuffix(name, suffix)
	}
	if name == "" || name == "." || name == "/" {
		return fmt.Errorf("invalid kickstart test %q", arg)
	}

	if strings.ContainsRune(arg, filepath.Separator) {
		c.TestDir = filepath.Dir(arg)
	}
	c.TestName = name
	return nil
}

// KsTemplatePath returns the kickstart template the test's prepare step expands.
func (c *Config) KsTemplatePath() string {
	return filepath.Join(c.TestDir, c.TestName+".ks.in")
}

// ScriptPath returns the per-test shell driver.
func (c *Config) ScriptPath() string {
	return filepath.Join(c.TestDir, c.TestName+".sh")
}

// ResultHost names this machine in RESULT lines and run records.
func (c *Config) ResultHost() string {
	if c.Host != "" {
		return c.Host
	}
	host, _ := os.Hostname()
	return host
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if c.TestName == "" {
		return fmt.Errorf("no kickstart test given")
	}
	if c.BootImage == "" {
		return fmt.Errorf("no boot image given")
	}
	if c.KeepLevel < 0 || c.KeepLevel > MaxKeepLevel {
		return fmt.Errorf("keep level must be between 0 and %d, got %d", MaxKeepLevel, c.KeepLevel)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.QemuBinary == "" {
		return fmt.Errorf("no qemu binary configured")
	}
	ram, err := c.RAMMiB()
	if err != nil {
		return err
	}
	if ram < MinRAM {
		return fmt.Errorf("ram must be at least %d MiB, got %d MiB", MinRAM, ram)
	}
	return nil
}

// RAMMiB returns the guest memory in MiB.
func (c *Config) RAMMiB() (int, error) {
	ram, err := util.ParseMemoryMiB(c.RAM)
	if err != nil {
		return 0, fmt.Errorf("invalid ram %q: %w", c.RAM, err)
	}
	return ram, nil
}
