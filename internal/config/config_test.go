package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTypeMap(t *testing.T) {
	typeMap := parseTypeMap("paid:Event Ticket,donation:Donation,free:Ignore")
	assert.Equal(t, "Event Ticket", typeMap["paid"])
	assert.Equal(t, "Donation", typeMap["donation"])
	assert.Equal(t, "Ignore", typeMap["free"])

	assert.Empty(t, parseTypeMap(""))
	assert.Empty(t, parseTypeMap("malformed"))
}

func TestLoadOrgs(t *testing.T) {
	t.Setenv("TEXAS_CONNECTOR_API_KEY", "key-1")
	t.Setenv("TEXAS_EVENTBRITE_TOKEN", "eb-token")
	t.Setenv("TEXAS_TYPE_MAP", "paid:Event Ticket")
	t.Setenv("TEXAS_PAYPAL_CLIENT_ID", "pp-id")
	t.Setenv("TEXAS_PAYPAL_CLIENT_SECRET", "pp-secret")

	orgs := loadOrgs()

	var found *OrgConfig
	for i := range orgs {
		if orgs[i].Slug == "texas" {
			found = &orgs[i]
		}
	}
	if assert.NotNil(t, found) {
		assert.Equal(t, "key-1", found.ConnectorAPIKey)
		assert.True(t, found.HasEventbrite())
		assert.True(t, found.HasPaypal())
		assert.Equal(t, "Event Ticket", found.TypeMap["paid"])
		assert.Equal(t, "Property1", found.PaypalProperty)
	}
}
