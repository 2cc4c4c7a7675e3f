package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	base := errors.New("prepare failed")

	assert.Equal(t, Success, FromError(nil))
	assert.Equal(t, Failure, FromError(base))
	assert.Equal(t, PrepFailure, FromError(WithCode(PrepFailure, base)))
	assert.Equal(t, Skip, FromError(fmt.Errorf("wrapped: %w", WithCode(Skip, base))))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("missing boot image")
	err := WithCode(PrepFailure, base)

	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "missing boot image (exit code 99)", err.Error())
}

func TestName(t *testing.T) {
	tests := map[int]string{
		Success:     "SUCCESS",
		Failure:     "FAILED",
		Timeout:     "TIMEOUT",
		KernelPanic: "KERNEL_PANIC",
		Skip:        "SKIPPED",
		PrepFailure: "PREP_FAILED",
		42:          "FAILED",
	}
	for code, want := range tests {
		assert.Equal(t, want, Name(code), "code %d", code)
	}
}
