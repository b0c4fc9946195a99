package reconcile

import "github.com/bwmarrin/snowflake"

// Disposition summarizes what reconciling one event did to the CRM graph.
type Disposition string

const (
	DispositionIgnored Disposition = "ignored"
	DispositionCreated Disposition = "created"
	DispositionUpdated Disposition = "updated"
	DispositionSkipped Disposition = "skipped"
)

// Outcome reports the records an event landed on. IDs are zero when the
// event did not touch that entity.
type Outcome struct {
	Disposition Disposition
	Reason      string

	ContactID           snowflake.ID
	CampaignID          snowflake.ID
	OpportunityID       snowflake.ID
	RecurringDonationID snowflake.ID
}

func ignored(reason string) *Outcome {
	return &Outcome{Disposition: DispositionIgnored, Reason: reason}
}

func skipped(reason string) *Outcome {
	return &Outcome{Disposition: DispositionSkipped, Reason: reason}
}
