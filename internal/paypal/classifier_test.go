package paypal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIgnoredCodes(t *testing.T) {
	for _, code := range []string{"T0400", "T0401", "T0003", "T0007", "T0300", "T0101", "T0200", "T1501", "T1105", "T1106"} {
		action, err := Classify(&Transaction{EventCode: code, GrossAmount: 50})
		require.NoError(t, err, code)
		assert.Equal(t, ActionIgnore, action, code)
	}
}

func TestClassifySingleOpportunityCodes(t *testing.T) {
	for _, code := range []string{"T0013", "T0000", "T0011", "T0001"} {
		action, err := Classify(&Transaction{EventCode: code, GrossAmount: 25})
		require.NoError(t, err, code)
		assert.Equal(t, ActionSingleOpportunity, action, code)
	}
}

func TestClassifyNegativeGeneralPayment(t *testing.T) {
	action, err := Classify(&Transaction{EventCode: "T0000", GrossAmount: -25})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnore, action)
}

func TestClassifyRefund(t *testing.T) {
	action, err := Classify(&Transaction{EventCode: "T1107", GrossAmount: -25})
	require.NoError(t, err)
	assert.Equal(t, ActionRefund, action)

	// a positive refund is money coming back to the org, not a donor refund
	action, err = Classify(&Transaction{EventCode: "T1107", GrossAmount: 25})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnore, action)
}

func TestClassifySubscriptionPayment(t *testing.T) {
	action, err := Classify(&Transaction{EventCode: "T0002", GrossAmount: 10, Status: "S"})
	require.NoError(t, err)
	assert.Equal(t, ActionSubscriptionPayment, action)
}

func TestClassifySubscriptionPaymentNegative(t *testing.T) {
	action, err := Classify(&Transaction{EventCode: "T0002", GrossAmount: -10, Status: "S"})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnore, action)
}

func TestClassifySubscriptionPaymentUnsettled(t *testing.T) {
	_, err := Classify(&Transaction{EventCode: "T0002", GrossAmount: 10, Status: "P"})
	assert.ErrorIs(t, err, ErrUnsettledSubscriptionPayment)
}

func TestClassifyUnrecognizedCode(t *testing.T) {
	_, err := Classify(&Transaction{EventCode: "T9999", GrossAmount: 10})
	var unrecognized *UnrecognizedEventCodeError
	require.ErrorAs(t, err, &unrecognized)
	assert.Equal(t, "T9999", unrecognized.Code)
}
