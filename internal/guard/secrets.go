package guard

import (
	"context"
	"fmt"
	"regexp"

	"github.com/edusuite/sage-gateway/internal/config"
	"github.com/edusuite/sage-gateway/internal/types"
)

// secretPattern detects one class of credential.
type secretPattern struct {
	name  string
	regex *regexp.Regexp
}

// secretPatterns are the built-in credential detectors. Students paste keys
// into chat surprisingly often; none of that may reach a third-party model.
var secretPatterns = []secretPattern{
	{"AWS Access Key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"GCP Service Account Key", regexp.MustCompile(`"private_key":\s*"-----BEGIN`)},
	{"GitHub Token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
	{"Stripe Secret Key", regexp.MustCompile(`sk_live_[A-Za-z0-9]{24,}`)},
	{"Google API Key", regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`)},
	{"Private Key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----`)},
	{"Connection String", regexp.MustCompile(`(?:postgres|mysql|mongodb|redis)://[^\s]+`)},
	{"JWT Token", regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)},
	{"Gateway API Key", regexp.MustCompile(`sage-[A-Za-z0-9]{32,}`)},
}

// SecretDetection locates a credential in the message.
type SecretDetection struct {
	PatternName string
	Start       int
	End         int
}

// SecretScanner blocks requests carrying credentials.
type SecretScanner struct {
	cfg func() config.SecretsGuardConfig
}

func NewSecretScanner(cfg func() config.SecretsGuardConfig) *SecretScanner {
	return &SecretScanner{cfg: cfg}
}

func (s *SecretScanner) Name() string  { return "secrets" }
func (s *SecretScanner) Enabled() bool { return s.cfg().Enabled }

// Scan returns every credential found in the text.
func (s *SecretScanner) Scan(text string) []SecretDetection {
	var detections []SecretDetection
	for _, p := range secretPatterns {
		for _, loc := range p.regex.FindAllStringIndex(text, -1) {
			detections = append(detections, SecretDetection{
				PatternName: p.name,
				Start:       loc[0],
				End:         loc[1],
			})
		}
	}
	return detections
}

func (s *SecretScanner) ScanRequest(_ context.Context, req *types.AIRequest) Result {
	detections := s.Scan(req.Message)
	if len(detections) == 0 {
		return Result{Action: ActionPass, GuardName: "secrets"}
	}
	return Result{
		Action:     ActionBlock,
		GuardName:  "secrets",
		Message:    fmt.Sprintf("Request blocked: message contains a credential (%s). Remove it and try again.", detections[0].PatternName),
		Detections: len(detections),
	}
}
