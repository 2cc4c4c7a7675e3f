package validator

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"kslauncher/internal/exitcode"
)

var placeholderRe = regexp.MustCompile(`@KSTEST_[A-Z0-9_]+@`)

// KickstartValidator checks the kickstart generated by the prepare step.
type KickstartValidator struct {
	Outcome
	ksPath string
}

func NewKickstartValidator(formatter *ResultFormatter, ksPath string) *KickstartValidator {
	return &KickstartValidator{Outcome: newOutcome(formatter), ksPath: ksPath}
}

// CheckKsSubstitution fails when the kickstart is missing or still carries
// @KSTEST_...@ placeholders.
func (v *KickstartValidator) CheckKsSubstitution() {
	data, err := os.ReadFile(v.ksPath)
	if err != nil {
		v.fail(exitcode.Failure, "Kickstart not found", fmt.Sprintf("%s: %v", v.ksPath, err))
		return
	}

	var unsubstituted []string
	for i, line := range strings.Split(string(data), "\n") {
		if placeholderRe.MatchString(line) {
			unsubstituted = append(unsubstituted, fmt.Sprintf("%d: %s", i+1, line))
		}
	}
	if len(unsubstituted) > 0 {
		v.fail(exitcode.Failure, "Kickstart placeholders not substituted", strings.Join(unsubstituted, "\n"))
	}
}
