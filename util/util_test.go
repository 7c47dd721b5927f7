package util_test

import (
	"testing"

	"github.com/atomoptics/fpgaclock/util"
)

func TestClampHigh(t *testing.T) {
	if out := util.Clamp(20., 0., 10.); out != 10. {
		t.Errorf("expected 10, got %g", out)
	}
}

func TestClampLow(t *testing.T) {
	if out := util.Clamp(-3., 0., 10.); out != 0. {
		t.Errorf("expected 0, got %g", out)
	}
}

func TestClampPassthrough(t *testing.T) {
	if out := util.Clamp(5., 0., 10.); out != 5. {
		t.Errorf("expected 5, got %g", out)
	}
}
