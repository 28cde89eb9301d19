package core

import "encoding/json"

// Secret represents sensitive values that should be redacted in UI/API output.
type Secret struct {
	Value string
}

// NewSecret wraps a raw value as a Secret.
func NewSecret(value string) Secret {
	return Secret{Value: value}
}

// IsSet reports whether a value is present.
func (s Secret) IsSet() bool {
	return s.Value != ""
}

// Redacted returns a redacted representation for display.
func (s Secret) Redacted() string {
	if !s.IsSet() {
		return ""
	}
	return "REDACTED"
}

// BearerHeader formats the secret as an Authorization header value.
func (s Secret) BearerHeader() string {
	if !s.IsSet() {
		return ""
	}
	return "Bearer " + s.Value
}

// MarshalJSON ensures secrets are never serialized in cleartext.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Redacted())
}

// String returns the redacted value for fmt printing.
func (s Secret) String() string {
	return s.Redacted()
}
