package paypal

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	crmdomain "github.com/donorsync/donorsync/internal/crm/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransaction(t *testing.T) {
	raw := json.RawMessage(`{
		"transaction_info": {
			"transaction_id": "8AB12345CD",
			"transaction_event_code": "T0013",
			"transaction_initiation_date": "2025-03-14T09:30:00-0600",
			"transaction_amount": {"currency_code": "USD", "value": "25.00"},
			"fee_amount": {"currency_code": "USD", "value": "-1.03"},
			"transaction_status": "S",
			"transaction_subject": "Spring drive",
			"transaction_note": "a friend",
			"paypal_account_id": "ACCT1"
		},
		"payer_info": {
			"email_address": "Donor@Example.COM",
			"payer_name": {"given_name": "Ada", "surname": "Lovelace"}
		},
		"shipping_info": {
			"name": "Lovelace, Ada",
			"address": {
				"line1": "12 Main St",
				"line2": "Apt 4",
				"city": "Austin",
				"state": "TX",
				"postal_code": "78701",
				"country_code": "US"
			}
		}
	}`)

	txn, err := ParseTransaction(raw)
	require.NoError(t, err)

	assert.Equal(t, "8AB12345CD", txn.ID)
	assert.Equal(t, "T0013", txn.EventCode)
	assert.Equal(t, "ACCT1", txn.AccountID)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), txn.Date)
	assert.Equal(t, 25.0, txn.GrossAmount)
	assert.Equal(t, 1.03, txn.FeeAmount) // sign reversed
	assert.Equal(t, "donor@example.com", txn.Email)
	assert.Equal(t, "Spring drive", txn.Subject)
	assert.Equal(t, "a friend", txn.Note)

	require.NotNil(t, txn.Name)
	assert.Equal(t, "Ada", txn.Name.First)
	assert.Equal(t, "Lovelace", txn.Name.Last)

	require.NotNil(t, txn.Address)
	assert.Equal(t, "12 Main St, Apt 4", txn.Address.Street)
	assert.Equal(t, "Austin", txn.Address.City)
	assert.Equal(t, "US", txn.Address.Country)
}

func TestParseTransactionNameFallbacks(t *testing.T) {
	base := `{
		"transaction_info": {
			"transaction_id": "T1",
			"transaction_event_code": "T0013",
			"transaction_initiation_date": "2025-03-14T09:30:00+0000",
			"transaction_amount": {"value": "10.00"},
			"transaction_status": "S"
		},
		"payer_info": {"payer_name": %s},
		"shipping_info": %s
	}`

	t.Run("shipping name with comma", func(t *testing.T) {
		txn, err := ParseTransaction(json.RawMessage(
			applyf(base, `{}`, `{"name": "King, Augusta Ada"}`)))
		require.NoError(t, err)
		require.NotNil(t, txn.Name)
		assert.Equal(t, "King", txn.Name.First)
		assert.Equal(t, "Augusta Ada", txn.Name.Last)
	})

	t.Run("shipping name without comma splits on last space", func(t *testing.T) {
		txn, err := ParseTransaction(json.RawMessage(
			applyf(base, `{}`, `{"name": "Augusta Ada King"}`)))
		require.NoError(t, err)
		require.NotNil(t, txn.Name)
		assert.Equal(t, "Augusta Ada", txn.Name.First)
		assert.Equal(t, "King", txn.Name.Last)
	})

	t.Run("alternate full name", func(t *testing.T) {
		txn, err := ParseTransaction(json.RawMessage(
			applyf(base, `{"alternate_full_name": "Grace Hopper"}`, `{}`)))
		require.NoError(t, err)
		require.NotNil(t, txn.Name)
		assert.Equal(t, "Grace", txn.Name.First)
		assert.Equal(t, "Hopper", txn.Name.Last)
	})

	t.Run("no name at all", func(t *testing.T) {
		txn, err := ParseTransaction(json.RawMessage(applyf(base, `{}`, `{}`)))
		require.NoError(t, err)
		assert.Nil(t, txn.Name)
	})
}

func TestParseTransactionPartialAddressDropped(t *testing.T) {
	raw := json.RawMessage(`{
		"transaction_info": {
			"transaction_id": "T2",
			"transaction_event_code": "T0013",
			"transaction_initiation_date": "2025-03-14T09:30:00+0000",
			"transaction_amount": {"value": "10.00"},
			"transaction_status": "S"
		},
		"payer_info": {"payer_name": {}},
		"shipping_info": {"address": {"line1": "12 Main St", "city": "Austin"}}
	}`)
	txn, err := ParseTransaction(raw)
	require.NoError(t, err)
	assert.Nil(t, txn.Address)
}

func TestParseSubscriptionMonthly(t *testing.T) {
	sub, err := ParseSubscription(subscriptionJSON("ACTIVE", "2025-03-01T10:00:00+0000", "2025-04-01T10:00:00+0000"))
	require.NoError(t, err)
	assert.Equal(t, crmdomain.PeriodMonthly, sub.InstallmentPeriod)
	assert.True(t, sub.Active())
	assert.Equal(t, "sub@example.com", sub.Email)
	assert.Equal(t, 10.0, sub.Amount)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), sub.LastPaymentDate)
}

func TestParseSubscriptionYearly(t *testing.T) {
	sub, err := ParseSubscription(subscriptionJSON("ACTIVE", "2025-03-01T10:00:00+0000", "2026-03-01T10:00:00+0000"))
	require.NoError(t, err)
	assert.Equal(t, crmdomain.PeriodYearly, sub.InstallmentPeriod)
}

func TestParseSubscriptionUnsupportedInterval(t *testing.T) {
	// weekly gap matches neither cadence
	sub, err := ParseSubscription(subscriptionJSON("ACTIVE", "2025-03-01T10:00:00+0000", "2025-03-08T10:00:00+0000"))
	require.NoError(t, err)
	assert.Equal(t, crmdomain.PeriodNone, sub.InstallmentPeriod)
}

func TestParseSubscriptionCancelledSkipsInterval(t *testing.T) {
	// cancelled subscriptions have no next billing time to measure against
	raw := json.RawMessage(`{
		"id": "I-SUB1",
		"status": "CANCELLED",
		"subscriber": {"email_address": "sub@example.com", "payer_id": "P1"},
		"billing_info": {"last_payment": {"time": "2025-03-01T10:00:00+0000", "amount": {"value": "10.00"}}}
	}`)
	sub, err := ParseSubscription(raw)
	require.NoError(t, err)
	assert.Equal(t, crmdomain.PeriodNone, sub.InstallmentPeriod)
	assert.False(t, sub.Active())
}

func applyf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func subscriptionJSON(status, lastPayment, nextBilling string) json.RawMessage {
	return json.RawMessage(`{
		"id": "I-SUB1",
		"status": "` + status + `",
		"create_time": "2024-01-01T00:00:00+0000",
		"subscriber": {"email_address": "Sub@Example.com", "payer_id": "P1"},
		"billing_info": {
			"last_payment": {"time": "` + lastPayment + `", "amount": {"value": "10.00"}},
			"next_billing_time": "` + nextBilling + `"
		}
	}`)
}
