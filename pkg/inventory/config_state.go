package inventory

import "fmt"

// ConfigState is the outcome of a bucket configuration query.
type ConfigState int

const (
	// ConfigAbsent means the bucket has no such configuration.
	ConfigAbsent ConfigState = iota

	// ConfigPresent means the configuration exists.
	ConfigPresent

	// ConfigError means the query failed for a reason other than absence.
	ConfigError
)

// String returns the table rendering of the state.
func (s ConfigState) String() string {
	switch s {
	case ConfigPresent:
		return "✅"
	case ConfigAbsent:
		return "❌"
	default:
		return "Error"
	}
}

// Name returns the machine-readable name used in JSON and YAML output.
func (s ConfigState) Name() string {
	switch s {
	case ConfigPresent:
		return "present"
	case ConfigAbsent:
		return "absent"
	default:
		return "error"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ConfigState) MarshalText() ([]byte, error) {
	return []byte(s.Name()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ConfigState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "present":
		*s = ConfigPresent
	case "absent":
		*s = ConfigAbsent
	case "error":
		*s = ConfigError
	default:
		return fmt.Errorf("unknown config state %q", string(text))
	}
	return nil
}
