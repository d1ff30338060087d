// Package redact scrubs credentials out of document text before it is
// chunked and embedded, using the gitleaks rule set.
package redact

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// Finding is one detected secret. The secret value itself is not retained.
type Finding struct {
	RuleID string
	Line   int
}

// Result is the outcome of a Scrub call.
type Result struct {
	Text     string
	Findings []Finding
	ByRule   map[string]int
}

// Redactor replaces detected secrets with [REDACTED:rule-id] markers.
type Redactor struct {
	regexes []string
	logger  *logging.Logger
}

// Options configures a Redactor.
type Options struct {
	// AllowlistPath points at a gitleaks-style TOML file with an
	// [allowlist] regexes array. Empty or missing means no allowlist.
	AllowlistPath string
	Logger        *logging.Logger
}

// New builds a Redactor, loading and validating the allowlist.
func New(opts Options) (*Redactor, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	regexes, err := loadAllowlist(opts.AllowlistPath)
	if err != nil {
		return nil, err
	}
	return &Redactor{regexes: regexes, logger: opts.Logger}, nil
}

// Redact returns text with secrets replaced.
func (r *Redactor) Redact(ctx context.Context, text string) (string, error) {
	res, err := r.Scrub(text)
	if err != nil {
		return "", err
	}
	if len(res.Findings) > 0 {
		fields := []zap.Field{zap.Int("findings", len(res.Findings))}
		for rule, n := range res.ByRule {
			fields = append(fields, zap.Int("rule."+rule, n))
		}
		r.logger.Info(ctx, "redacted secrets from document", fields...)
	}
	return res.Text, nil
}

// Scrub detects secrets and returns the redacted text with findings.
func (r *Redactor) Scrub(text string) (*Result, error) {
	res := &Result{Text: text, ByRule: map[string]int{}}
	if strings.TrimSpace(text) == "" {
		return res, nil
	}

	// Detectors accumulate findings internally, so each scan gets a fresh one.
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if len(r.regexes) > 0 {
		applyAllowlist(&detector.Config, r.regexes)
	}

	secrets := map[string]string{}
	for _, f := range detector.DetectString(text) {
		if f.Secret == "" {
			continue
		}
		res.Findings = append(res.Findings, Finding{RuleID: f.RuleID, Line: f.StartLine})
		res.ByRule[f.RuleID]++
		if _, seen := secrets[f.Secret]; !seen {
			secrets[f.Secret] = f.RuleID
		}
	}
	res.Text = replaceSecrets(text, secrets)
	return res, nil
}

// replaceSecrets substitutes longest secrets first so a secret that
// contains another is replaced whole.
func replaceSecrets(text string, secrets map[string]string) string {
	if len(secrets) == 0 {
		return text
	}
	values := make([]string, 0, len(secrets))
	for s := range secrets {
		values = append(values, s)
	}
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})

	pairs := make([]string, 0, 2*len(values))
	for _, s := range values {
		pairs = append(pairs, s, fmt.Sprintf("[REDACTED:%s]", secrets[s]))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func applyAllowlist(cfg *gitleaksconfig.Config, regexes []string) {
	allow := &gitleaksconfig.Allowlist{Description: "ragd allowlist"}
	for _, pattern := range regexes {
		// validated in loadAllowlist
		allow.Regexes = append(allow.Regexes, (*gitleaksregexp.Regexp)(regexp.MustCompile(pattern)))
	}
	allow.StopWords = append(allow.StopWords, regexes...)
	cfg.Allowlists = append(cfg.Allowlists, allow)
}

func loadAllowlist(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	var file struct {
		Allowlist struct {
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, errdefs.Configf("ingest.allowlist_path", "invalid TOML in %s: %v", path, err)
	}
	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, errdefs.Configf("ingest.allowlist_path", "invalid pattern %q in %s: %v", pattern, path, err)
		}
	}
	return file.Allowlist.Regexes, nil
}
