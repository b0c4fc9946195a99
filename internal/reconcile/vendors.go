package reconcile

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/donorsync/donorsync/internal/eventbrite"
	orgdomain "github.com/donorsync/donorsync/internal/organization/domain"
	"github.com/donorsync/donorsync/internal/paypal"
	"go.uber.org/zap"
)

// PaypalAPI is the slice of the PayPal client the engine uses.
type PaypalAPI interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*paypal.Subscription, error)
	ListTransactions(ctx context.Context, start, end time.Time) ([]json.RawMessage, error)
}

// EventbriteAPI is the slice of the Eventbrite client the engine uses.
type EventbriteAPI interface {
	GetEvent(ctx context.Context, eventID, expand string) (*eventbrite.Event, error)
	GetEventAttendee(ctx context.Context, eventID, attendeeID, expand string) (*eventbrite.Attendee, error)
	GetOrder(ctx context.Context, orderID, expand string) (*eventbrite.Order, error)
	FetchResource(ctx context.Context, apiURL string) (json.RawMessage, error)
	ListOrganizations(ctx context.Context) ([]eventbrite.Organization, error)
	ListEvents(ctx context.Context, organizationID string) ([]eventbrite.Event, error)
	ListAttendees(ctx context.Context, eventID string) ([]eventbrite.Attendee, error)
}

// VendorClients hands out per-organization API clients, each built from that
// organization's credentials.
type VendorClients interface {
	Paypal(org *orgdomain.Organization) PaypalAPI
	Eventbrite(org *orgdomain.Organization) EventbriteAPI
}

type vendorClients struct {
	log *zap.Logger

	mu         sync.Mutex
	paypals    map[string]PaypalAPI
	eventbrite map[string]EventbriteAPI
}

// NewVendorClients builds the production VendorClients. Clients are cached
// per org so access tokens survive across tasks.
func NewVendorClients(log *zap.Logger) VendorClients {
	return &vendorClients{
		log:        log,
		paypals:    make(map[string]PaypalAPI),
		eventbrite: make(map[string]EventbriteAPI),
	}
}

func (v *vendorClients) Paypal(org *orgdomain.Organization) PaypalAPI {
	v.mu.Lock()
	defer v.mu.Unlock()
	client, ok := v.paypals[org.Slug]
	if !ok {
		client = paypal.NewClient(org.PaypalClientID, org.PaypalClientSecret, v.log)
		v.paypals[org.Slug] = client
	}
	return client
}

func (v *vendorClients) Eventbrite(org *orgdomain.Organization) EventbriteAPI {
	v.mu.Lock()
	defer v.mu.Unlock()
	client, ok := v.eventbrite[org.Slug]
	if !ok {
		client = eventbrite.NewClient(org.EventbriteToken, v.log)
		v.eventbrite[org.Slug] = client
	}
	return client
}
