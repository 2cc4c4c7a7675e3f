package validator

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"kslauncher/internal/exitcode"
	"kslauncher/internal/virt"
)

type logCheck struct {
	needle string
	msg    string
	code   int
}

var installChecks = []logCheck{
	{needle: "Kernel panic - not syncing", msg: "Kernel panic", code: exitcode.KernelPanic},
	{needle: "Traceback (most recent call last):", msg: "Traceback found", code: exitcode.Failure},
	{needle: "Call Trace:", msg: "Call Trace found", code: exitcode.Failure},
	{needle: "CRIT systemd-coredump:", msg: "Core dump found", code: exitcode.Failure},
	{needle: "Out of memory:", msg: "Out of memory", code: exitcode.Failure},
	{needle: "An unknown error has occured", msg: "Unknown installer error", code: exitcode.Failure},
	{needle: "The installation was stopped due to", msg: "Installation stopped", code: exitcode.Failure},
	{needle: "Kickstart insufficient", msg: "Kickstart insufficient", code: exitcode.Failure},
}

var virtChecks = []logCheck{
	{needle: virt.RecordTimeout, msg: "Test timed out", code: exitcode.Timeout},
	{needle: virt.RecordKernelPanic, msg: "Kernel panic", code: exitcode.KernelPanic},
	{needle: virt.RecordVMError, msg: "Virtual machine failed", code: exitcode.Failure},
}

// LogValidator looks for failures in the logs of the installation VM.
type LogValidator struct {
	Outcome
}

func NewLogValidator(formatter *ResultFormatter) *LogValidator {
	return &LogValidator{Outcome: newOutcome(formatter)}
}

// CheckInstallErrors scans the guest console log for installer crashes.
// A kernel panic yields the kernel panic exit code.
func (v *LogValidator) CheckInstallErrors(path string) {
	v.check(path, installChecks, false)
}

// CheckVirtErrors scans the VM controller log for timeout, kernel panic and
// other VM failure records. A missing log holds no records.
func (v *LogValidator) CheckVirtErrors(path string) {
	v.check(path, virtChecks, true)
}

// check fails on the first line that matches any of checks. Earlier checks
// win when one line matches several.
func (v *LogValidator) check(path string, checks []logCheck, missingOK bool) {
	f, err := os.Open(path)
	if err != nil {
		if missingOK && os.IsNotExist(err) {
			return
		}
		v.fail(exitcode.Failure, "Log not found", fmt.Sprintf("%s: %v", path, err))
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		for _, c := range checks {
			if strings.Contains(line, c.needle) {
				v.fail(c.code, c.msg, strings.TrimSpace(line))
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		v.fail(exitcode.Failure, "Log not readable", fmt.Sprintf("%s: %v", path, err))
	}
}
