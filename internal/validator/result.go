package validator

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// ResultFormatter prints the RESULT lines the parallel runner collects.
type ResultFormatter struct {
	testName string
	host     string
	out      io.Writer
}

// NewResultFormatter returns a formatter for testName. An empty host means
// the machine hostname.
func NewResultFormatter(testName, host string) *ResultFormatter {
	if host == "" {
		host, _ = os.Hostname()
	}
	return &ResultFormatter{testName: testName, host: host, out: os.Stdout}
}

// SetOutput redirects the RESULT lines.
func (f *ResultFormatter) SetOutput(w io.Writer) {
	f.out = w
}

// Format returns RESULT:<test>:<host>:SUCCESS|FAILED:<msg>, followed by the
// description on the next line when there is one.
func (f *ResultFormatter) Format(ok bool, msg, description string) string {
	status := "FAILED"
	if ok {
		status = "SUCCESS"
	}
	line := fmt.Sprintf("RESULT:%s:%s:%s:%s", f.testName, f.host, status, msg)
	if description = strings.TrimSpace(description); description != "" {
		line += "\n" + description
	}
	return line
}

func (f *ResultFormatter) PrintResult(ok bool, msg, description string) {
	fmt.Fprintln(f.out, f.Format(ok, msg, description))
}

// Outcome is the result shared by all validators. It starts out successful.
type Outcome struct {
	Result      bool
	ReturnCode  int
	Msg         string
	Description string

	formatter *ResultFormatter
}

func newOutcome(formatter *ResultFormatter) Outcome {
	return Outcome{Result: true, formatter: formatter}
}

func (r *Outcome) fail(code int, msg, description string) {
	r.Result = false
	r.ReturnCode = code
	r.Msg = msg
	r.Description = description
}

// PrintResult prints the RESULT line for the check.
func (r *Outcome) PrintResult() {
	r.formatter.PrintResult(r.Result, r.Msg, r.Description)
}

// LogResult logs a failed check to the run log.
func (r *Outcome) LogResult(log logrus.FieldLogger) {
	if r.Result {
		return
	}
	fields := logrus.Fields{"return_code": r.ReturnCode}
	if r.Description != "" {
		fields["description"] = r.Description
	}
	log.WithFields(fields).Error(r.Msg)
	fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("✖"), r.Msg)
}
