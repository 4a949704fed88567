package registry

import "fmt"

// Status is the latest belief about an instance's availability.
type Status int

const (
	StatusUnknown   Status = iota // Added, not probed yet
	StatusHealthy                 // Last probe returned 2xx
	StatusUnhealthy               // Last probe failed
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText lets Status render as its name in JSON documents.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "healthy":
		*s = StatusHealthy
	case "unhealthy":
		*s = StatusUnhealthy
	case "unknown":
		*s = StatusUnknown
	default:
		return fmt.Errorf("unknown instance status %q", text)
	}
	return nil
}

func statusFor(healthy bool) Status {
	if healthy {
		return StatusHealthy
	}
	return StatusUnhealthy
}
