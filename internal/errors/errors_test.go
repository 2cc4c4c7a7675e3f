package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		err      error
		expected string
	}{
		{
			name:     "simple error",
			op:       "copyImage",
			err:      errors.New("file not found"),
			expected: `operation "copyImage" failed: file not found`,
		},
		{
			name:     "operation with spaces",
			op:       "prepare disks",
			err:      errors.New("permission denied"),
			expected: `operation "prepare disks" failed: permission denied`,
		},
		{
			name:     "nested error",
			op:       "outer",
			err:      E("inner", errors.New("base error")),
			expected: `operation "outer" failed: operation "inner" failed: base error`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Error{Op: tt.op, Err: tt.err}
			if result := e.Error(); result != tt.expected {
				t.Errorf("Error.Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestE(t *testing.T) {
	result := E("someOp", nil)
	if _, ok := result.(*Error); !ok {
		t.Errorf("E() returned type %T, want *Error", result)
	}
	if !strings.Contains(result.Error(), "someOp") {
		t.Errorf("E().Error() = %q, want to contain %q", result.Error(), "someOp")
	}
}

func TestError_Unwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := E("level2", E("level1", sentinel))

	if !errors.Is(err, sentinel) {
		t.Errorf("errors.Is() could not find the sentinel through %q", err)
	}

	var opErr *Error
	if !errors.As(err, &opErr) {
		t.Fatal("errors.As() did not find *Error")
	}
	if opErr.Op != "level2" {
		t.Errorf("outermost Op = %q, want %q", opErr.Op, "level2")
	}
}
