package config

// redacted is written in place of secret values wherever they are printed.
const redacted = "***REDACTED***"

// SecretString holds a credential loaded from the environment or SSM. It
// prints and marshals as a placeholder so config dumps and structured log
// lines never carry the raw value; call Unmask where the plaintext is needed.
type SecretString string

// String implements fmt.Stringer.
func (s SecretString) String() string {
	return redacted
}

// MarshalJSON implements json.Marshaler.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Unmask returns the plaintext value.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsZero reports whether the secret is unset.
func (s SecretString) IsZero() bool {
	return s == ""
}
