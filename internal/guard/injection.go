package guard

import (
	"context"
	"fmt"
	"regexp"

	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/types"
)

// injectionRule scores one prompt-injection phrasing.
type injectionRule struct {
	name     string
	regex    *regexp.Regexp
	severity float64
	category string // instruction_bypass, role_override, encoding_trick, output_steering
}

var injectionRules = []injectionRule{
	{"ignore_previous", regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`), 0.95, "instruction_bypass"},
	{"disregard_prior", regexp.MustCompile(`(?i)disregard\s+(all\s+)?prior\s+(instructions|context|rules)`), 0.95, "instruction_bypass"},
	{"jailbreak", regexp.MustCompile(`(?i)(do\s+anything\s+now|jailbreak|unrestricted\s+mode)`), 0.9, "role_override"},
	{"code_block_system", regexp.MustCompile("(?i)```system"), 0.9, "role_override"},
	{"system_prefix", regexp.MustCompile(`(?i)^\s*system\s*:\s*`), 0.85, "role_override"},
	{"developer_mode", regexp.MustCompile(`(?i)(developer|debug|admin|root)\s+mode\s+(enabled|activated|on)`), 0.85, "role_override"},
	{"base64_instruction", regexp.MustCompile(`(?i)(decode|execute|follow)\s+(the\s+)?base64`), 0.85, "encoding_trick"},
	{"reveal_prompt", regexp.MustCompile(`(?i)(reveal|show|print)\s+(your\s+)?(system\s+prompt|instructions)`), 0.85, "instruction_bypass"},
	{"new_instructions", regexp.MustCompile(`(?i)(new|updated|revised)\s+instructions?\s*:`), 0.8, "instruction_bypass"},
	{"response_prefix", regexp.MustCompile(`(?i)respond\s+with\s*:\s*(sure|absolutely|of course)`), 0.75, "output_steering"},
	{"you_are_now", regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+`), 0.7, "role_override"},
}

// InjectionDetection records a matched rule.
type InjectionDetection struct {
	RuleName string
	Severity float64
	Category string
}

// InjectionScanner scores prompt-injection phrasing and blocks over the
// configured threshold.
type InjectionScanner struct {
	cfg func() config.InjectionGuardConfig
}

func NewInjectionScanner(cfg func() config.InjectionGuardConfig) *InjectionScanner {
	return &InjectionScanner{cfg: cfg}
}

func (s *InjectionScanner) Name() string  { return "injection" }
func (s *InjectionScanner) Enabled() bool { return s.cfg().Enabled }

// Scan returns all matches and the maximum severity seen.
func (s *InjectionScanner) Scan(text string) ([]InjectionDetection, float64) {
	var detections []InjectionDetection
	maxScore := 0.0
	for _, r := range injectionRules {
		if !r.regex.MatchString(text) {
			continue
		}
		detections = append(detections, InjectionDetection{
			RuleName: r.name,
			Severity: r.severity,
			Category: r.category,
		})
		if r.severity > maxScore {
			maxScore = r.severity
		}
	}
	return detections, maxScore
}

func (s *InjectionScanner) ScanRequest(_ context.Context, req *types.AIRequest) Result {
	detections, score := s.Scan(req.Message)
	cfg := s.cfg()

	switch {
	case score >= cfg.BlockThreshold:
		return Result{
			Action:     ActionBlock,
			GuardName:  "injection",
			Message:    fmt.Sprintf("Request blocked: prompt injection detected (score %.2f)", score),
			Detections: len(detections),
			Score:      score,
		}
	case score >= cfg.FlagThreshold:
		return Result{
			Action:     ActionFlag,
			GuardName:  "injection",
			Detections: len(detections),
			Score:      score,
		}
	default:
		return Result{Action: ActionPass, GuardName: "injection", Score: score}
	}
}
