package shell

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"kslauncher/internal/config"
	"kslauncher/internal/runner"

	"github.com/kballard/go-shellquote"
)

// execCommand is a variable to allow mocking of exec.Command in tests
var execCommand = exec.Command

// Procedures every test driver script provides, usually through functions.sh.
const (
	ProcPrepare              = "prepare"
	ProcPrepareDisks         = "prepare_disks"
	ProcPrepareNetwork       = "prepare_network"
	ProcKernelArgs           = "kernel_args"
	ProcBootArgs             = "boot_args"
	ProcAdditionalRunnerArgs = "additional_runner_args"
	ProcValidate             = "validate"
	ProcCleanup              = "cleanup"
)

// Launcher calls shell procedures of a kickstart test's driver script.
type Launcher struct {
	script     string
	testDir    string
	ksTemplate string
	tmpDir     string
}

// New returns a Launcher for the test described by cfg, working in tmpDir.
func New(cfg *config.Config, tmpDir string) *Launcher {
	return &Launcher{
		script:     absPath(cfg.ScriptPath()),
		testDir:    absPath(cfg.TestDir),
		ksTemplate: absPath(cfg.KsTemplatePath()),
		tmpDir:     tmpDir,
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func (l *Launcher) command(procedure string, args ...string) *exec.Cmd {
	script := fmt.Sprintf(". %s; %s", shellquote.Join(l.script), procedure)
	if len(args) > 0 {
		script += " " + shellquote.Join(args...)
	}

	cmd := execCommand("/bin/bash", "-c", script)
	cmd.Dir = l.testDir
	cmd.Env = append(os.Environ(),
		"KSTESTDIR="+l.testDir,
		"KSTEST_TMP="+l.tmpDir,
	)
	return cmd
}

// RunProcedure runs one procedure of the driver script.
func (l *Launcher) RunProcedure(procedure string, args ...string) (*runner.Output, error) {
	return runner.Run(l.command(procedure, args...))
}

// RunPrepare expands the kickstart template; stdout is the generated kickstart path.
func (l *Launcher) RunPrepare() (*runner.Output, error) {
	return l.RunProcedure(ProcPrepare, l.ksTemplate, l.tmpDir)
}

// RunPrepareDisks creates the test disks; stdout lists their paths.
func (l *Launcher) RunPrepareDisks() (*runner.Output, error) {
	return l.RunProcedure(ProcPrepareDisks, l.tmpDir)
}

// RunPrepareNetwork lists the NIC definitions of the guest.
func (l *Launcher) RunPrepareNetwork() (*runner.Output, error) {
	return l.RunProcedure(ProcPrepareNetwork, l.tmpDir)
}

func (l *Launcher) RunKernelArgs() (*runner.Output, error) {
	return l.RunProcedure(ProcKernelArgs)
}

func (l *Launcher) RunBootArgs() (*runner.Output, error) {
	return l.RunProcedure(ProcBootArgs)
}

func (l *Launcher) RunAdditionalRunnerArgs() (*runner.Output, error) {
	return l.RunProcedure(ProcAdditionalRunnerArgs)
}

// RunValidate checks the installed system; its return code is the test result.
func (l *Launcher) RunValidate() (*runner.Output, error) {
	return l.RunProcedure(ProcValidate, l.tmpDir)
}

func (l *Launcher) RunCleanup() (*runner.Output, error) {
	return l.RunProcedure(ProcCleanup, l.tmpDir)
}
