package prompt

import (
	"strings"
	"testing"

	"github.com/edusuite/sage-gateway/internal/types"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		message string
		want    types.Mode
	}{
		{"I'm getting an error when I submit the form", types.ModeDebug},
		{"this doesn't work at all", types.ModeDebug},
		{"can you review this function", types.ModeCodeReview},
		{"how do I deploy this to production", types.ModeProduction},
		{"is storing passwords like this secure?", types.ModeSecurity},
		{"the page loads really slow", types.ModePerformance},
		{"explain recursion to me like I'm a beginner", types.ModeLearning},
		{"what time does the library close", types.ModeGeneral},
		{"", types.ModeGeneral},
		// "error" outranks "explain": first rule wins.
		{"explain this error to me", types.ModeDebug},
		{"REVIEW MY HOMEWORK", types.ModeCodeReview},
	}
	for _, tt := range tests {
		if got := DetectMode(tt.message); got != tt.want {
			t.Errorf("DetectMode(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestComposeAppendsAddendum(t *testing.T) {
	text, mode := Compose("", "fix this bug please")
	if mode != types.ModeDebug {
		t.Fatalf("mode = %v", mode)
	}
	if !strings.HasPrefix(text, baseIdentity) {
		t.Error("base identity must lead the preamble")
	}
	if !strings.Contains(text, architectureRules) {
		t.Error("house rules missing")
	}
	if !strings.Contains(text, modeAddenda[types.ModeDebug]) {
		t.Error("debug addendum missing")
	}
}

func TestComposeHintOverridesDetection(t *testing.T) {
	text, mode := Compose(types.ModeSecurity, "fix this bug please")
	if mode != types.ModeSecurity {
		t.Fatalf("mode = %v, hint must win over detection", mode)
	}
	if !strings.Contains(text, modeAddenda[types.ModeSecurity]) {
		t.Error("security addendum missing")
	}
	if strings.Contains(text, modeAddenda[types.ModeDebug]) {
		t.Error("detected mode leaked in despite explicit hint")
	}
}

func TestComposeUnknownHintIsGeneral(t *testing.T) {
	text, mode := Compose(types.Mode("wizard"), "hello")
	if mode != types.ModeGeneral {
		t.Fatalf("mode = %v", mode)
	}
	for m, addendum := range modeAddenda {
		if strings.Contains(text, addendum) {
			t.Errorf("general preamble contains %v addendum", m)
		}
	}
}

func TestComposeGeneralHasNoAddendum(t *testing.T) {
	text, _ := Compose(types.ModeGeneral, "anything about errors and bugs")
	if !strings.HasSuffix(text, architectureRules) {
		t.Error("general mode should end with the house rules")
	}
}
