package config

import (
	"fmt"
	"time"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns every config key with its current value. Secret values are
// masked.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		val := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret {
			val = mask(val)
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  val,
			Secret: s.secret,
		})
	}
	return result
}

func mask(v string) string {
	switch {
	case v == "":
		return "(not set)"
	case len(v) <= 8:
		return "********"
	default:
		return v[:4] + "****"
	}
}

// Setter persists config keys. Secrets go to the keyring and everything else
// to the config file.
type Setter struct {
	Backend ConfigBackend
	Secrets SecretStore
}

// NewSetter writes to the default config file and the OS keyring.
func NewSetter() *Setter {
	return &Setter{Backend: NewFileBackend(FilePath()), Secrets: NewKeyringStore(KeyringService)}
}

// Set validates value against the key's type and stores it.
func (m *Setter) Set(key, value string) error {
	s, ok := findSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		if err := m.Secrets.Set(s.account, value); err != nil {
			return fmt.Errorf("storing %s in keyring: %w", key, err)
		}
		return nil
	}
	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	switch val := v.(type) {
	case int:
		return m.Backend.SetInt(key, val)
	case time.Duration:
		return m.Backend.SetString(key, val.String())
	case bool:
		return m.Backend.SetString(key, fmt.Sprintf("%t", val))
	default:
		return m.Backend.SetString(key, value)
	}
}

// Unset removes a key from the config file so its default applies again.
func (m *Setter) Unset(key string) error {
	s, ok := findSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot unset secret %q; overwrite it with config set", key)
	}
	return m.Backend.Delete(key)
}

// ValidKeys returns all config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
