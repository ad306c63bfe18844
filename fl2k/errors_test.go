package fl2k

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := newErr("set_mode", Busy, nil)
	if !errors.Is(err, ErrBusy) {
		t.Fatal("expected errors.Is to match on Code alone")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatal("expected errors.Is to reject a different Code")
	}
}

func TestErrorUnwrapReachesCause(t *testing.T) {
	cause := fmt.Errorf("short read from register")
	err := newErr("read_reg", Other, cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the wrapped cause")
	}
}

func TestErrorMessageIncludesOpAndCode(t *testing.T) {
	err := newErr("open", InvalidParam, nil)
	got := err.Error()
	if got == "" {
		t.Fatal("expected a non-empty error message")
	}
	if !strings.Contains(got, "open") {
		t.Fatalf("message %q does not name the operation", got)
	}
	if !strings.Contains(got, InvalidParam.String()) {
		t.Fatalf("message %q does not name the code", got)
	}
}
