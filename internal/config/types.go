package config

import (
	"encoding/json"
	"fmt"
	"io"
)

const redacted = "[REDACTED]"

// Secret holds a credential (API keys for Qdrant, the embedder and the
// LLM). Every print and encode path masks it; Value is the only way out.
type Secret string

// Value returns the raw credential.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a credential is configured.
func (s Secret) IsSet() bool { return s != "" }

func (s Secret) masked() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) String() string { return s.masked() }

// Format masks every verb; %#v prints Secret([REDACTED]).
func (s Secret) Format(f fmt.State, verb rune) {
	switch {
	case verb == 'v' && f.Flag('#'):
		_, _ = io.WriteString(f, "Secret("+redacted+")")
	case verb == 'q':
		_, _ = fmt.Fprintf(f, "%q", s.masked())
	default:
		_, _ = io.WriteString(f, s.masked())
	}
}

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.masked()) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.masked()), nil }

// UnmarshalText stores the raw value, so YAML and env input decode as-is.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
