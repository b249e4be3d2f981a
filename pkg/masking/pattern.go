package masking

import "regexp"

// Pattern is one compiled secret-detection rule: Regexp is matched against
// raw text, and every match is replaced wholesale with Replacement.
type Pattern struct {
	Name        string
	Regexp      *regexp.Regexp
	Replacement string
	Description string
}

// builtinPatterns mirrors the security-relevant subset of the teacher's
// config.BuiltinConfig().MaskingPatterns catalog: the "security" and
// "cloud" pattern groups, which are the two groups a remediation lambda's
// response or a forwarded alert payload can plausibly contain. The
// "kubernetes" group (data/stringData field detection on parsed Secret
// resources) is not reproduced here — see DESIGN.md for why.
var builtinPatterns = []Pattern{
	{
		Name:        "api_key",
		Regexp:      regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{16,})['"]?`),
		Replacement: "$1=***MASKED_API_KEY***",
		Description: "API keys in key=value or key: value form",
	},
	{
		Name:        "password",
		Regexp:      regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*['"]?([^\s'"]{4,})['"]?`),
		Replacement: "$1=***MASKED_PASSWORD***",
		Description: "Passwords in key=value or key: value form",
	},
	{
		Name:        "token",
		Regexp:      regexp.MustCompile(`(?i)(token|bearer)\s*[:=]?\s*['"]?([A-Za-z0-9_\-\.]{16,})['"]?`),
		Replacement: "$1=***MASKED_TOKEN***",
		Description: "Bearer and generic API tokens",
	},
	{
		Name:        "certificate",
		Regexp:      regexp.MustCompile(`-----BEGIN CERTIFICATE-----[\s\S]*?-----END CERTIFICATE-----`),
		Replacement: "***MASKED_CERTIFICATE***",
		Description: "PEM-encoded certificates",
	},
	{
		Name:        "certificate_authority_data",
		Regexp:      regexp.MustCompile(`(?i)(certificate-authority-data)\s*:\s*([A-Za-z0-9+/=]{20,})`),
		Replacement: "$1: ***MASKED_CA_DATA***",
		Description: "kubeconfig certificate-authority-data fields",
	},
	{
		Name:        "private_key",
		Regexp:      regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
		Replacement: "***MASKED_PRIVATE_KEY***",
		Description: "PEM-encoded private keys",
	},
	{
		Name:        "ssh_key",
		Regexp:      regexp.MustCompile(`ssh-(rsa|ed25519|dss) [A-Za-z0-9+/=]{20,}`),
		Replacement: "***MASKED_SSH_KEY***",
		Description: "SSH public keys",
	},
	{
		Name:        "secret_key",
		Regexp:      regexp.MustCompile(`(?i)(secret[_-]?key)\s*[:=]\s*['"]?([A-Za-z0-9_\-/+]{16,})['"]?`),
		Replacement: "$1=***MASKED_SECRET_KEY***",
		Description: "Generic secret-key fields",
	},
	{
		Name:        "aws_access_key",
		Regexp:      regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
		Replacement: "***MASKED_AWS_ACCESS_KEY***",
		Description: "AWS access key IDs",
	},
	{
		Name:        "aws_secret_key",
		Regexp:      regexp.MustCompile(`(?i)(aws_secret_access_key)\s*[:=]\s*['"]?([A-Za-z0-9/+=]{40})['"]?`),
		Replacement: "$1=***MASKED_AWS_SECRET_KEY***",
		Description: "AWS secret access keys",
	},
	{
		Name:        "github_token",
		Regexp:      regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
		Replacement: "***MASKED_GITHUB_TOKEN***",
		Description: "GitHub personal-access and app tokens",
	},
	{
		Name:        "slack_token",
		Regexp:      regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
		Replacement: "***MASKED_SLACK_TOKEN***",
		Description: "Slack bot/app/user tokens",
	},
	{
		Name:        "base64_secret",
		Regexp:      regexp.MustCompile(`(?i)(data|stringData)\s*:\s*\{?\s*[A-Za-z0-9_.\-]+\s*:\s*['"]?([A-Za-z0-9+/]{40,}={0,2})['"]?`),
		Replacement: "$1: ***MASKED_BASE64_SECRET***",
		Description: "Long base64 blobs under Kubernetes Secret data/stringData keys",
	},
	{
		Name:        "email",
		Regexp:      regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		Replacement: "***MASKED_EMAIL***",
		Description: "Email addresses",
	},
}

// DefaultPatterns returns the built-in pattern catalog. Exposed so callers
// can inspect or extend it without reaching into the unexported slice.
func DefaultPatterns() []Pattern {
	out := make([]Pattern, len(builtinPatterns))
	copy(out, builtinPatterns)
	return out
}
