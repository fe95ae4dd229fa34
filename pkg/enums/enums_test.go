package enums

import "testing"

func TestNormalizeProcessorStatus(t *testing.T) {
	cases := map[string]SubscriptionStatus{
		"":                   SubscriptionStatusNone,
		"active":             SubscriptionStatusActive,
		" Past_Due ":         SubscriptionStatusPastDue,
		"unpaid":             SubscriptionStatusUnpaid,
		"incomplete_expired": SubscriptionStatusCanceled,
		"paused":             SubscriptionStatusIncomplete,
		"something_new":      SubscriptionStatusIncomplete,
	}
	for raw, want := range cases {
		if got := NormalizeProcessorStatus(raw); got != want {
			t.Fatalf("NormalizeProcessorStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestRequiresPayment(t *testing.T) {
	for _, status := range validSubscriptionStatuses {
		want := status == SubscriptionStatusPastDue || status == SubscriptionStatusUnpaid
		if status.RequiresPayment() != want {
			t.Fatalf("%s: RequiresPayment = %v", status, !want)
		}
	}
}

func TestGrantsAccessOnlyForActiveAndTrialing(t *testing.T) {
	for _, status := range validAccessStatuses {
		want := status == AccessStatusActive || status == AccessStatusTrialing
		if status.GrantsAccess() != want {
			t.Fatalf("%s: GrantsAccess = %v", status, !want)
		}
	}
	if AccessStatus("bogus").GrantsAccess() {
		t.Fatalf("unknown status must not grant access")
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	if _, err := ParseAccessStatus("unpaid"); err == nil {
		t.Fatalf("unpaid is not a normalized access status")
	}
	if _, err := ParseSubscriptionStatus("trial_expired"); err == nil {
		t.Fatalf("trial_expired is not a raw subscription status")
	}
	if _, err := ParseInviteStatus("expired"); err == nil {
		t.Fatalf("expected invalid invite status")
	}
	if s, err := ParseInviteStatus("accepted"); err != nil || s != InviteStatusAccepted || !s.IsValid() {
		t.Fatalf("unexpected parse result %q %v", s, err)
	}
}
