package subscriptions

import (
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/angelmondragon/appointly-backend/pkg/enums"
)

// ProcessorState is the processor-owned slice of a subscription record.
type ProcessorState struct {
	SubscriptionID   string
	Status           enums.SubscriptionStatus
	CurrentPeriodEnd *time.Time
	CanceledAt       *time.Time
}

// StateFromStripe maps a Stripe subscription onto the processor-owned fields.
// A cancellation only counts once the subscription actually ended; a pending
// cancel-at-period-end keeps its paid period.
func StateFromStripe(sub *stripe.Subscription) *ProcessorState {
	if sub == nil {
		return nil
	}
	state := &ProcessorState{
		SubscriptionID:   sub.ID,
		Status:           enums.NormalizeProcessorStatus(string(sub.Status)),
		CurrentPeriodEnd: latestPeriodEnd(sub),
	}
	if state.Status == enums.SubscriptionStatusCanceled {
		switch {
		case sub.EndedAt > 0:
			state.CanceledAt = unixPtr(sub.EndedAt)
		case sub.CanceledAt > 0:
			state.CanceledAt = unixPtr(sub.CanceledAt)
		}
	}
	return state
}

// preferSubscription picks the subscription that best describes the customer:
// one that currently grants service first, then the most recently created.
func preferSubscription(current, candidate *stripe.Subscription) *stripe.Subscription {
	if current == nil {
		return candidate
	}
	if candidate == nil {
		return current
	}
	currentLive, candidateLive := isLive(current), isLive(candidate)
	if currentLive != candidateLive {
		if candidateLive {
			return candidate
		}
		return current
	}
	if candidate.Created > current.Created {
		return candidate
	}
	return current
}

func isLive(sub *stripe.Subscription) bool {
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return true
	default:
		return false
	}
}

func latestPeriodEnd(sub *stripe.Subscription) *time.Time {
	if sub.Items == nil {
		return nil
	}
	var latest int64
	for _, item := range sub.Items.Data {
		if item != nil && item.CurrentPeriodEnd > latest {
			latest = item.CurrentPeriodEnd
		}
	}
	if latest == 0 {
		return nil
	}
	return unixPtr(latest)
}

func unixPtr(ts int64) *time.Time {
	t := time.Unix(ts, 0).UTC()
	return &t
}
