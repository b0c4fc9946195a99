// Package eventbrite is a thin client for the Eventbrite v3 REST API. The
// official SDKs are skipped on purpose: they cover neither continuation
// pagination nor the organizations endpoints this engine needs.
package eventbrite

import "time"

// Statuses an attendee can carry on the wire.
const (
	AttendeeAttending    = "Attending"
	AttendeeCheckedIn    = "Checked In"
	AttendeeDeleted      = "Deleted"
	AttendeeNotAttending = "Not Attending"
)

// TicketCategoryAddOn marks add-on tickets, which never become opportunities.
const TicketCategoryAddOn = "add_on"

const createdLayout = "2006-01-02T15:04:05Z"

type Pagination struct {
	HasMoreItems bool   `json:"has_more_items"`
	Continuation string `json:"continuation"`
}

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type EventName struct {
	Text string `json:"text"`
}

type EventDate struct {
	Local string `json:"local"`
	UTC   string `json:"utc"`
}

type TicketClass struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	IncludeFee bool   `json:"include_fee"`
}

type Event struct {
	ID            string        `json:"id"`
	Name          EventName     `json:"name"`
	Status        string        `json:"status"`
	Start         EventDate     `json:"start"`
	End           EventDate     `json:"end"`
	URL           string        `json:"url"`
	ResourceURI   string        `json:"resource_uri"`
	TicketClasses []TicketClass `json:"ticket_classes"`
}

// TicketClassByID finds the expanded ticket class an attendee purchased.
func (e *Event) TicketClassByID(id string) (TicketClass, bool) {
	for _, tc := range e.TicketClasses {
		if tc.ID == id {
			return tc, true
		}
	}
	return TicketClass{}, false
}

// EndUTC parses the event's end time; zero when absent or malformed.
func (e *Event) EndUTC() time.Time {
	t, err := time.Parse(createdLayout, e.End.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

type money struct {
	Value int `json:"value"`
}

// Costs are reported in the currency's minor unit.
type Costs struct {
	Gross     money `json:"gross"`
	BasePrice money `json:"base_price"`
}

// GrossAmount is the gross cost in major units.
func (c Costs) GrossAmount() float64 { return float64(c.Gross.Value) / 100 }

// BaseAmount is the pre-fee cost in major units.
func (c Costs) BaseAmount() float64 { return float64(c.BasePrice.Value) / 100 }

type BillingAddress struct {
	Address1   string `json:"address_1"`
	Address2   string `json:"address_2"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Addresses struct {
		Bill *BillingAddress `json:"bill"`
	} `json:"addresses"`
}

type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Attendee struct {
	ID            string   `json:"id"`
	EventID       string   `json:"event_id"`
	TicketClassID string   `json:"ticket_class_id"`
	Status        string   `json:"status"`
	Refunded      bool     `json:"refunded"`
	Created       string   `json:"created"`
	Costs         Costs    `json:"costs"`
	Profile       Profile  `json:"profile"`
	Answers       []Answer `json:"answers"`
	ResourceURI   string   `json:"resource_uri"`
}

// CreatedDate is the registration date at UTC midnight; zero when malformed.
func (a *Attendee) CreatedDate() time.Time {
	t, err := time.Parse(createdLayout, a.Created)
	if err != nil {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PostalCodeAnswer returns a postal code collected through a custom question,
// used when the billing address is incomplete.
func (a *Attendee) PostalCodeAnswer() string {
	for _, ans := range a.Answers {
		if ans.Question == "Postal Code" || ans.Question == "Zip Code" {
			return ans.Answer
		}
	}
	return ""
}

type Order struct {
	ID          string     `json:"id"`
	Attendees   []Attendee `json:"attendees"`
	ResourceURI string     `json:"resource_uri"`
}
