// Package domain contains the organization configuration model.
package domain

// Organization is the configuration scope for one tenant: vendor credentials,
// the ticket-category to record-type map, and the donation property tag.
// Immutable after construction.
type Organization struct {
	Slug            string
	ConnectorAPIKey string

	EventbriteToken string
	EventbriteOrgID string

	// TypeMap maps an Eventbrite ticket category to the CRM Opportunity
	// record type name. The value "Ignore" (any case) suppresses the
	// opportunity entirely.
	TypeMap map[string]string

	PaypalClientID     string
	PaypalClientSecret string
	PaypalProperty     string
}

func (o *Organization) String() string { return o.Slug }

// HasEventbrite reports whether the org can talk to Eventbrite.
func (o *Organization) HasEventbrite() bool { return o.EventbriteToken != "" }

// HasPaypal reports whether the org can talk to PayPal.
func (o *Organization) HasPaypal() bool { return o.PaypalClientID != "" }

// RecordTypeFor resolves the record type name for a ticket category.
func (o *Organization) RecordTypeFor(category string) (string, bool) {
	if o.TypeMap == nil {
		return "", false
	}
	name, ok := o.TypeMap[category]
	return name, ok
}
