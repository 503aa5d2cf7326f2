package secrets

import (
	"regexp"

	"github.com/valkyrie-scanner/valkyrie/internal/validate"
)

// Pattern is one kind of secret the rule looks for.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
	// MinEntropy discards matches whose Shannon entropy is below it; 0 disables.
	MinEntropy float64
	// Keywords raise confidence when present on the same line.
	Keywords []string
	// Validate, when set, rejects matches that cannot be a real credential.
	Validate func(match string) bool
}

// DefaultPatterns is the built-in secret catalogue.
var DefaultPatterns = []Pattern{
	{
		Name:     "AWS Access Key",
		Re:       regexp.MustCompile(`(?i)AKIA[0-9A-Z]{16}`),
		Keywords: []string{"aws", "amazon", "access", "key"},
	},
	{
		Name:       "Generic API Key",
		Re:         regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|secretkey)\s*[:=]\s*["']?([a-z0-9]{20,})`),
		MinEntropy: 3.5,
	},
	{
		Name:     "JWT Token",
		Re:       regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
		Keywords: []string{"jwt", "token", "bearer"},
	},
	{
		Name:     "GitHub Token",
		Re:       regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36}`),
		Keywords: []string{"github", "token"},
	},
	{
		Name:     "Private Key",
		Re:       regexp.MustCompile(`-----BEGIN [A-Z ]+ PRIVATE KEY-----`),
		Keywords: []string{"private", "key", "rsa", "ssh"},
	},
	{
		Name:     "Database Connection String",
		Re:       regexp.MustCompile(`(?i)(mongodb|mysql|postgres|redis)://[^\s]+`),
		Keywords: []string{"database", "connection", "string"},
	},
}

// validators are the structural checks applied in strict mode, keyed by
// pattern name.
var validators = map[string]func(string) bool{
	"AWS Access Key": validate.LooksLikeAWSAccessKey,
	"JWT Token":      validate.IsJWTStructure,
	"GitHub Token":   validate.LooksLikeGitHubToken,
}

// StrictPatterns returns DefaultPatterns with structural validators attached.
// Regex matches that fail them, such as a GitHub token whose body contains an
// underscore, are dropped.
func StrictPatterns() []Pattern {
	out := make([]Pattern, len(DefaultPatterns))
	for i, p := range DefaultPatterns {
		p.Validate = validators[p.Name]
		out[i] = p
	}
	return out
}

// skipExtensions are binary formats never worth reading as text.
var skipExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true,
	".exe": true, ".dll": true, ".so": true, ".dmg": true,
}

// lines containing any of these are treated as documentation, not code
var falsePositiveMarkers = []string{"example", "placeholder", "your_api_key_here"}

// test-like context lowers confidence
var testIndicators = []string{"test", "example", "demo", "fake"}
