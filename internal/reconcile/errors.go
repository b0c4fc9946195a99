package reconcile

import (
	"errors"
	"fmt"

	"github.com/donorsync/donorsync/internal/crm/domain"
	"github.com/donorsync/donorsync/internal/eventbrite"
	"github.com/donorsync/donorsync/internal/paypal"
)

// ErrMissingReferencedOpportunity means a refund referenced a transaction the
// engine never recorded. Retrying cannot fix it; the original transaction has
// to be imported first.
var ErrMissingReferencedOpportunity = errors.New("referenced opportunity not found")

// ErrUnknownOrganization means a task named an org slug the registry does not
// hold.
var ErrUnknownOrganization = errors.New("unknown organization")

// UnknownSubscriptionStatusError is returned when PayPal reports a
// subscription status outside the understood set.
type UnknownSubscriptionStatusError struct {
	SubscriptionID string
	Status         string
}

func (e *UnknownSubscriptionStatusError) Error() string {
	return fmt.Sprintf("subscription %s has unknown status %q", e.SubscriptionID, e.Status)
}

// IsRetryable splits the error taxonomy for the queue: transient vendor and
// storage failures are worth another attempt, everything that reflects the
// event's content is not.
func IsRetryable(err error) bool {
	var unrecognized *paypal.UnrecognizedEventCodeError
	var unknownStatus *UnknownSubscriptionStatusError
	var malformed *MalformedPayloadError
	var unmapped *UnmappedTicketCategoryError
	var rateLimited *eventbrite.RateLimitError

	switch {
	case errors.As(err, &rateLimited):
		return true
	case errors.As(err, &unrecognized),
		errors.As(err, &unknownStatus),
		errors.As(err, &malformed),
		errors.As(err, &unmapped),
		errors.Is(err, paypal.ErrUnsettledSubscriptionPayment),
		errors.Is(err, ErrMissingReferencedOpportunity),
		errors.Is(err, ErrUnknownOrganization),
		errors.Is(err, eventbrite.ErrNotFound),
		errors.Is(err, domain.ErrInvalidRecord):
		return false
	}
	return true
}
