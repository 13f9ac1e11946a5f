package types

// redacted is the replacement text for secret values in logs and serialized output.
const redacted = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted text.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a sensitive value (database URL, provider credential)
// that must never appear in logs or serialized output. String() and
// MarshalJSON() both return a redacted placeholder, so fmt verbs, slog
// fields, and JSON config dumps are all safe by default.
//
// Call Unmask() at the single point where the raw value is handed to a
// driver or client.
type SecretString string

// String returns the redacted placeholder. Invoked by fmt and by slog when
// the value is logged as a field.
func (s SecretString) String() string {
	return redacted
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// IsZero reports whether the secret is unset.
func (s SecretString) IsZero() bool {
	return s == ""
}

// Unmask returns the raw plaintext value. Callers should be the final
// consumer of the secret (pool construction, Authorization headers), never
// intermediate plumbing.
func (s SecretString) Unmask() string {
	return string(s)
}
