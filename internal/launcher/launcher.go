// Package launcher drives one kickstart test from preparation to the final
// RESULT line.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"kslauncher/internal/config"
	"kslauncher/internal/downloader"
	"kslauncher/internal/exitcode"
	"kslauncher/internal/runner"
	"kslauncher/internal/shell"
	"kslauncher/internal/util"
	"kslauncher/internal/validator"
	"kslauncher/internal/virt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// VirtualMachine installs the test system.
type VirtualMachine interface {
	Run(ctx context.Context) error
}

// newVirtualMachine is a variable to allow replacing the VM in tests
var newVirtualMachine = func(conf *virt.Configuration, log logrus.FieldLogger) VirtualMachine {
	return virt.NewManager(conf, log)
}

// Runner runs a single kickstart test in its temp dir.
type Runner struct {
	conf      *config.Config
	tmpDir    string
	shell     *shell.Launcher
	formatter *validator.ResultFormatter
	log       logrus.FieldLogger

	bootImage string
	ksFile    string
	cleanedUp bool
}

func New(conf *config.Config, tmpDir string, log logrus.FieldLogger) *Runner {
	return &Runner{
		conf:      conf,
		tmpDir:    tmpDir,
		shell:     shell.New(conf, tmpDir),
		formatter: validator.NewResultFormatter(conf.TestName, conf.ResultHost()),
		log:       log.WithField("test", conf.TestName),
	}
}

// SetOutput redirects the RESULT lines.
func (r *Runner) SetOutput(w io.Writer) {
	r.formatter.SetOutput(w)
}

// PrepareTest gets the boot image, expands the kickstart and checks it. On
// failure the RESULT line is printed, cleanup has run and the returned
// error carries the exit code.
func (r *Runner) PrepareTest(ctx context.Context) error {
	if err := r.fetchBootImage(ctx); err != nil {
		return r.prepFailed(err.Error(), err)
	}

	out, err := r.shell.RunPrepare()
	if err != nil {
		return r.prepFailed(err.Error(), err)
	}
	if !out.OK() {
		return r.prepFailed(out.Stdout, out.Check())
	}
	r.ksFile = r.resolveKickstart(out.Stdout)

	v := validator.NewKickstartValidator(r.formatter, r.ksFile)
	v.CheckKsSubstitution()
	if !v.Result {
		v.LogResult(r.log)
		v.PrintResult()
		r.Cleanup()
		return exitcode.WithCode(exitcode.PrepFailure, errors.New(v.Msg))
	}
	return nil
}

func (r *Runner) prepFailed(description string, err error) error {
	r.log.WithError(err).Error("Test prep failed")
	r.formatter.PrintResult(false, "Test prep failed", description)
	r.Cleanup()
	return exitcode.WithCode(exitcode.PrepFailure, err)
}

func (r *Runner) fetchBootImage(ctx context.Context) error {
	if downloader.IsURL(r.conf.BootImage) {
		path, err := downloader.FetchBootImage(ctx, r.conf.BootImage, r.tmpDir)
		if err != nil {
			return fmt.Errorf("failed to download boot image: %w", err)
		}
		r.bootImage = path
		return nil
	}

	if !util.FileExists(r.conf.BootImage) {
		return fmt.Errorf("boot image %s not found", r.conf.BootImage)
	}
	color.Cyan("i Copying boot image %s to %s", r.conf.BootImage, r.tmpDir)
	path, err := util.CopyPreserve(r.conf.BootImage, r.tmpDir)
	if err != nil {
		return fmt.Errorf("failed to copy boot image: %w", err)
	}
	r.bootImage = path
	return nil
}

// resolveKickstart takes the last line prepare printed as the kickstart
// path, relative to the test directory unless absolute.
func (r *Runner) resolveKickstart(stdout string) string {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	ks := strings.TrimSpace(lines[len(lines)-1])
	if ks == "" || filepath.IsAbs(ks) {
		return ks
	}
	testDir, err := filepath.Abs(r.conf.TestDir)
	if err != nil {
		return ks
	}
	return filepath.Join(testDir, ks)
}

// RunTest prepares and runs the test and returns the process exit code.
// Cleanup runs exactly once whatever the outcome.
func (r *Runner) RunTest(ctx context.Context) int {
	defer r.Cleanup()

	if err := r.PrepareTest(ctx); err != nil {
		return exitcode.FromError(err)
	}

	vconf, err := r.virtConfiguration()
	if err != nil {
		r.log.WithError(err).Error("Test prep failed")
		r.formatter.PrintResult(false, "Test prep failed", describe(err))
		return exitcode.PrepFailure
	}
	if r.conf.Verbose {
		vconf.WriteTable(os.Stderr)
	}

	if err := newVirtualMachine(vconf, r.log).Run(ctx); err != nil {
		return r.vmFailed(vconf, err)
	}

	v := validator.NewLogValidator(r.formatter)
	v.CheckInstallErrors(vconf.InstallLogPath())
	if v.Result {
		v.CheckVirtErrors(vconf.LogPath)
	}
	if !v.Result {
		v.LogResult(r.log)
		v.PrintResult()
		return v.ReturnCode
	}

	out, err := r.shell.RunValidate()
	if err != nil {
		r.log.WithError(err).Error("Validation could not run")
		r.formatter.PrintResult(false, "Validation failed", err.Error())
		return exitcode.Failure
	}
	if !out.OK() {
		r.log.WithField("return_code", out.ReturnCode).Error("Validation failed")
		r.formatter.PrintResult(false, fmt.Sprintf("with return code %d", out.ReturnCode),
			fmt.Sprintf("stdout: '%s' stderr: '%s'", out.Stdout, out.Stderr))
		return out.ReturnCode
	}

	r.formatter.PrintResult(true, "test done", "")
	return exitcode.Success
}

// vmFailed picks the exit code of a failed VM run from the controller log,
// falling back to the returned error.
func (r *Runner) vmFailed(vconf *virt.Configuration, err error) int {
	r.log.WithError(err).Error("Virtual machine run failed")

	v := validator.NewLogValidator(r.formatter)
	v.CheckVirtErrors(vconf.LogPath)
	if !v.Result {
		v.LogResult(r.log)
		v.PrintResult()
		return v.ReturnCode
	}

	switch {
	case errors.Is(err, virt.ErrTimeout):
		r.formatter.PrintResult(false, "Test timed out", err.Error())
		return exitcode.Timeout
	case errors.Is(err, virt.ErrKernelPanic):
		r.formatter.PrintResult(false, "Kernel panic", err.Error())
		return exitcode.KernelPanic
	default:
		r.formatter.PrintResult(false, "Virtual machine failed", err.Error())
		return exitcode.Failure
	}
}

// Cleanup runs the test's cleanup procedure. Only the first call does
// anything.
func (r *Runner) Cleanup() {
	if r.cleanedUp {
		return
	}
	r.cleanedUp = true

	out, err := r.shell.RunCleanup()
	if err != nil {
		r.log.WithError(err).Warn("Test cleanup failed")
		return
	}
	if !out.OK() {
		r.log.WithField("return_code", out.ReturnCode).Warnf("Test cleanup failed: %s", out.Stderr)
	}
}

func describe(err error) string {
	var cmdErr *runner.CommandError
	if errors.As(err, &cmdErr) {
		return strings.TrimSpace(cmdErr.Stdout + "\n" + cmdErr.Stderr)
	}
	return err.Error()
}
