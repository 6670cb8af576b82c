package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString keeps credentials (API keys, webhook secrets, DSNs) out of
// logs and serialized output. Both fmt formatting and JSON encoding see only
// a redacted placeholder; Unmask returns the plaintext for the few places
// that genuinely need it, such as an Authorization header.
type SecretString string

// String satisfies fmt.Stringer with the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON encodes the redacted placeholder, never the raw value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the plaintext secret.
func (s SecretString) Unmask() string {
	return string(s)
}
