package subscriptions

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v82"

	pkgstripe "github.com/angelmondragon/appointly-backend/pkg/stripe"
)

const customerListLimit = 10

// StripeSubscriptionClient reads the customer's current subscription state from Stripe.
type StripeSubscriptionClient interface {
	FetchLatest(ctx context.Context, customerID string) (*ProcessorState, error)
}

type subscriptionLister func(params *stripe.SubscriptionListParams) subscriptionIter

type subscriptionIter interface {
	Next() bool
	Subscription() *stripe.Subscription
	Err() error
}

type stripeClientWrapper struct {
	list subscriptionLister
}

// NewStripeClient wraps the initialized Stripe client so the resolver can be tested.
func NewStripeClient(api *pkgstripe.Client) StripeSubscriptionClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{list: func(params *stripe.SubscriptionListParams) subscriptionIter {
		return api.ListSubscriptions(params)
	}}
}

// FetchLatest returns nil when Stripe has no subscription for the customer.
func (w *stripeClientWrapper) FetchLatest(ctx context.Context, customerID string) (*ProcessorState, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(strings.TrimSpace(customerID)),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(customerListLimit)

	iter := w.list(params)
	var chosen *stripe.Subscription
	seen := 0
	for iter.Next() {
		chosen = preferSubscription(chosen, iter.Subscription())
		seen++
		if seen >= customerListLimit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return StateFromStripe(chosen), nil
}
