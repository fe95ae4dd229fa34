package enums

import (
	"fmt"
	"strings"
)

// SubscriptionStatus mirrors the payment processor's raw subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusNone       SubscriptionStatus = "none"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusNone,
	SubscriptionStatusTrialing,
	SubscriptionStatusActive,
	SubscriptionStatusPastDue,
	SubscriptionStatusCanceled,
	SubscriptionStatusUnpaid,
	SubscriptionStatusIncomplete,
}

// processorStatusAliases folds processor states that have no raw counterpart of their own.
var processorStatusAliases = map[string]SubscriptionStatus{
	"incomplete_expired": SubscriptionStatusCanceled,
	"paused":             SubscriptionStatusIncomplete,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// RequiresPayment reports whether the processor is waiting on a failed charge.
func (s SubscriptionStatus) RequiresPayment() bool {
	return s == SubscriptionStatusPastDue || s == SubscriptionStatusUnpaid
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}

// NormalizeProcessorStatus maps a processor-reported state onto the stored raw status.
// Empty input means the processor has nothing for the customer.
func NormalizeProcessorStatus(raw string) SubscriptionStatus {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return SubscriptionStatusNone
	}
	if mapped, ok := processorStatusAliases[value]; ok {
		return mapped
	}
	if parsed, err := ParseSubscriptionStatus(value); err == nil {
		return parsed
	}
	return SubscriptionStatusIncomplete
}
