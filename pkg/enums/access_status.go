package enums

import "fmt"

// AccessStatus is the normalized subscription state exposed to clients and embedded in sessions.
type AccessStatus string

const (
	AccessStatusTrialing     AccessStatus = "trialing"
	AccessStatusActive       AccessStatus = "active"
	AccessStatusPastDue      AccessStatus = "past_due"
	AccessStatusCanceled     AccessStatus = "canceled"
	AccessStatusTrialExpired AccessStatus = "trial_expired"
	AccessStatusIncomplete   AccessStatus = "incomplete"
)

var validAccessStatuses = []AccessStatus{
	AccessStatusTrialing,
	AccessStatusActive,
	AccessStatusPastDue,
	AccessStatusCanceled,
	AccessStatusTrialExpired,
	AccessStatusIncomplete,
}

// String implements fmt.Stringer.
func (s AccessStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s AccessStatus) IsValid() bool {
	for _, candidate := range validAccessStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// GrantsAccess is the only place access is derived from a status.
func (s AccessStatus) GrantsAccess() bool {
	return s == AccessStatusActive || s == AccessStatusTrialing
}

// ParseAccessStatus converts raw input into an AccessStatus.
func ParseAccessStatus(value string) (AccessStatus, error) {
	for _, candidate := range validAccessStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid access status %q", value)
}
