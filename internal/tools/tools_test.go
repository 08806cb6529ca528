package tools

import (
	"context"
	"math"
	"strings"
	"testing"
)

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+3", 5},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"-3 + 5", 2},
		{"2^10", 1024},
		{"2^3^2", 512}, // right-associative
		{"10 % 3", 1},
		{"-(2+3)", -5},
		{"3.5 * 2", 7},
	}
	for _, tt := range tests {
		got, err := evalArithmetic(tt.expr)
		if err != nil {
			t.Errorf("evalArithmetic(%q): %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("evalArithmetic(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvalArithmeticRejects(t *testing.T) {
	for _, expr := range []string{
		"", "2 +", "1/0", "10 % 0", "2 ** 3", "abc", "1 + (2", "__import__('os')", "2;3",
	} {
		if _, err := evalArithmetic(expr); err == nil {
			t.Errorf("evalArithmetic(%q) accepted, want error", expr)
		}
	}
}

func TestCalculatorTool(t *testing.T) {
	r := builtinRegistry(t)
	got, err := r.Execute(context.Background(), "calculator", map[string]any{"expression": "6 * 7"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "42" {
		t.Errorf("result = %q, want %q", got, "42")
	}
}

func TestUnitConverter(t *testing.T) {
	r := builtinRegistry(t)
	tests := []struct {
		args map[string]any
		want string
	}{
		{map[string]any{"value": 1000.0, "from_unit": "m", "to_unit": "km"}, "1000 m = 1 km"},
		{map[string]any{"value": 100.0, "from_unit": "c", "to_unit": "f"}, "100 c = 212 f"},
		{map[string]any{"value": 0.0, "from_unit": "c", "to_unit": "k"}, "0 c = 273.15 k"},
		{map[string]any{"value": 1.0, "from_unit": "kg", "to_unit": "g"}, "1 kg = 1000 g"},
	}
	for _, tt := range tests {
		got, err := r.Execute(context.Background(), "unit_converter", tt.args)
		if err != nil {
			t.Errorf("Execute(%v): %v", tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Execute(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}

	if _, err := r.Execute(context.Background(), "unit_converter",
		map[string]any{"value": 1.0, "from_unit": "kg", "to_unit": "km"}); err == nil {
		t.Error("cross-kind conversion accepted, want error")
	}
}

func TestPythonExecutorContract(t *testing.T) {
	r := builtinRegistry(t)

	got, err := r.Execute(context.Background(), "python_executor",
		map[string]any{"code": "print(sum(range(10)))"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != pythonExecutorSuccess {
		t.Errorf("result = %q", got)
	}

	for _, code := range []string{
		"import os",
		"open('/etc/passwd')",
		"__import__('os')",
		"eval('1+1')",
		"os.system('ls')",
	} {
		if _, err := r.Execute(context.Background(), "python_executor",
			map[string]any{"code": code}); err == nil {
			t.Errorf("code %q accepted, want rejection", code)
		}
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := builtinRegistry(t)
	if _, err := r.Execute(context.Background(), "rm_rf", nil); err == nil {
		t.Error("unknown tool executed")
	}
}

func TestRegistryDoubleRegistration(t *testing.T) {
	r := builtinRegistry(t)
	err := r.Register(Tool{Name: "calculator", Run: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }})
	if err == nil {
		t.Error("double registration accepted")
	}
}

func TestPreambleListsToolsAndMarker(t *testing.T) {
	r := builtinRegistry(t)
	p := r.Preamble()
	for _, name := range []string{"calculator", "get_time", "unit_converter", "python_executor", "web_search"} {
		if !strings.Contains(p, name) {
			t.Errorf("preamble missing %s", name)
		}
	}
	if !strings.Contains(p, Marker) {
		t.Error("preamble missing invocation marker")
	}
}

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantTool string
		wantOK   bool
	}{
		{
			name:     "plain",
			text:     `TOOL_CALL: {"tool": "calculator", "arguments": {"expression": "2+2"}}`,
			wantTool: "calculator",
			wantOK:   true,
		},
		{
			name:     "surrounded by prose",
			text:     "Let me work that out.\nTOOL_CALL: {\"tool\": \"get_time\", \"arguments\": {}}\nOne moment.",
			wantTool: "get_time",
			wantOK:   true,
		},
		{
			name:     "nested object and braces in strings",
			text:     `TOOL_CALL: {"tool": "python_executor", "arguments": {"code": "print(\"{}\")"}}`,
			wantTool: "python_executor",
			wantOK:   true,
		},
		{name: "no marker", text: "the answer is 4"},
		{name: "marker without json", text: "TOOL_CALL: calculator(2+2)"},
		{name: "unbalanced", text: `TOOL_CALL: {"tool": "calculator"`},
		{name: "missing tool name", text: `TOOL_CALL: {"arguments": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, ok := ParseToolCall(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && tc.Tool != tt.wantTool {
				t.Errorf("tool = %q, want %q", tc.Tool, tt.wantTool)
			}
		})
	}
}
