package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"kslauncher/internal/config"
	"kslauncher/internal/errors"
	"kslauncher/internal/exitcode"
	"kslauncher/internal/launcher"
	"kslauncher/internal/logging"
	"kslauncher/internal/metadata"
	"kslauncher/internal/tempdir"
	"kslauncher/internal/virt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath   string
	bootImage    string
	updatesImage string
	keepLevel    int
	tmpBase      string
	timeout      string
	ram          string
	vnc          bool
	qemuBinary   string
	dryRun       bool
	verbose      bool
	host         string

	// exitCode is what the process exits with after a run.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "kslauncher [flags] <test>",
	Short: "kslauncher runs a single kickstart test in a virtual machine",
	Long: `kslauncher runs one kickstart test: it prepares the test with the test's
driver script, installs a VM from the boot image and validates the result.

<test> is a test name in the current directory or a path to <name>.sh or
<name>.ks.in.

Exit codes:
  0   success
  1   test failure
  2   timeout
  3   kernel panic
  77  skipped, something the test needs is missing
  99  test preparation failed`,
	Args: cobra.ExactArgs(1),
	// SilenceErrors is used to prevent cobra from printing the error,
	// as we handle it ourselves in the Execute function.
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runTest,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML file with run defaults (default $HOME/.kslauncher/config.yaml)")
	flags.StringVarP(&bootImage, "image", "i", "", "Boot ISO path or http(s) URL")
	flags.StringVarP(&updatesImage, "updates", "u", "", "Updates image passed to the installer as inst.updates=")
	flags.IntVarP(&keepLevel, "keep", "k", 0, "What to keep of the temp dir: 0 nothing, 1 logs, 2 everything")
	flags.StringVar(&tmpBase, "tmp", config.DefaultTmpBase, "Base directory for the test's temp dir")
	flags.StringVarP(&timeout, "timeout", "t", "60", "Install timeout in minutes or as a duration")
	flags.StringVar(&ram, "ram", config.DefaultRAM, "Guest memory in MiB or with a unit suffix")
	flags.BoolVar(&vnc, "vnc", false, "Expose the guest display over VNC")
	flags.StringVar(&qemuBinary, "qemu", config.DefaultQemuBinary, "qemu system emulator to run")
	flags.BoolVar(&dryRun, "dry-run", false, "Do not read the boot image or start the VM")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Debug logging and the VM configuration table")
	flags.StringVar(&host, "host", "", "Host name in RESULT lines (default the hostname)")
}

func Execute() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(exitcode.PrepFailure)
	}
	os.Exit(exitCode)
}

// loadConfig layers the defaults file, KSTEST_* variables and the flags the
// user set, in that order.
func loadConfig(cmd *cobra.Command, test string) (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.SetTest(test); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("image") {
		cfg.BootImage = bootImage
	}
	if flags.Changed("updates") {
		cfg.UpdatesImage = updatesImage
	}
	if flags.Changed("keep") {
		cfg.KeepLevel = keepLevel
	}
	if flags.Changed("tmp") {
		cfg.TmpBase = tmpBase
	}
	if flags.Changed("timeout") {
		d, err := config.ParseTimeout(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", timeout, err)
		}
		cfg.Timeout = d
	}
	if flags.Changed("ram") {
		cfg.RAM = ram
	}
	if flags.Changed("vnc") {
		cfg.VNC = vnc
	}
	if flags.Changed("qemu") {
		cfg.QemuBinary = qemuBinary
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("host") {
		cfg.Host = host
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return errors.E("load-config", err)
	}

	tmp, err := tempdir.New(cfg.TmpBase, cfg.KeepLevel, cfg.TestName)
	if err != nil {
		return errors.E("create-tmpdir", err)
	}

	log := logging.New(cfg.Verbose)
	logFile, err := logging.AddFile(log, filepath.Join(tmp.Dir(), virt.LogFileName))
	if err != nil {
		if cleanupErr := tmp.Cleanup(); cleanupErr != nil {
			color.Yellow("! Warning: %v", cleanupErr)
		}
		return errors.E("open-log", err)
	}

	color.Cyan("i Running kickstart test %s in %s", cfg.TestName, tmp.Dir())
	run := metadata.NewRun(cfg.TestName, cfg.ResultHost(), cfg.BootImage, tmp.Dir())

	r := launcher.New(cfg, tmp.Dir(), log)
	r.SetOutput(cmd.OutOrStdout())
	code := r.RunTest(cmd.Context())

	run.Finish(code, exitcode.Name(code))
	if err := metadata.Save(tmp.Dir(), run); err != nil {
		log.WithError(err).Warn("failed to save run metadata")
	}
	log.WithField("exit_code", code).Infof("Test finished: %s", run.Outcome)
	if err := logFile.Close(); err != nil {
		color.Yellow("! Warning: %v", err)
	}
	if err := tmp.Cleanup(); err != nil {
		color.Yellow("! Warning: failed to clean up %s: %v", tmp.Dir(), err)
	}

	exitCode = code
	return nil
}
