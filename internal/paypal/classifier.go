package paypal

import (
	"errors"
	"fmt"
)

// Action is what the engine should do with a classified transaction. The set
// is closed; Classify returns an error rather than inventing a bucket for an
// event code it has never seen.
type Action int

const (
	// ActionIgnore drops the transaction: operational money movement, fees,
	// holds, or amounts with the wrong sign for their code.
	ActionIgnore Action = iota
	// ActionSingleOpportunity records a one-off donation or payment.
	ActionSingleOpportunity
	// ActionRefund reverses a previously recorded opportunity.
	ActionRefund
	// ActionSubscriptionPayment records an installment of a recurring series.
	ActionSubscriptionPayment
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionSingleOpportunity:
		return "single_opportunity"
	case ActionRefund:
		return "refund"
	case ActionSubscriptionPayment:
		return "subscription_payment"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ErrUnsettledSubscriptionPayment means a T0002 arrived with a status other
// than settled. Not retryable; the event needs a human.
var ErrUnsettledSubscriptionPayment = errors.New("subscription payment not settled")

// UnrecognizedEventCodeError is returned for event codes outside the known
// taxonomy so new PayPal behavior surfaces loudly instead of being guessed at.
type UnrecognizedEventCodeError struct {
	Code string
}

func (e *UnrecognizedEventCodeError) Error() string {
	return fmt.Sprintf("unrecognized event code %q", e.Code)
}

// ignoredEventCodes are operational events with no donor meaning.
var ignoredEventCodes = map[string]struct{}{
	"T0400": {}, // general withdrawal from account
	"T0401": {}, // autosweep
	"T0003": {}, // pre-approved payment (BillUser API)
	"T0007": {}, // website payments standard payment
	"T0300": {}, // general funding of account
	"T0101": {}, // website payments pro monthly fee
	"T0200": {}, // general currency conversion
	"T1501": {}, // account hold for open authorization
	"T1105": {}, // reversal of general account hold
	"T1106": {}, // payment reversal initiated by PayPal
}

// singleOpportunityEventCodes record as one-off opportunities.
var singleOpportunityEventCodes = map[string]struct{}{
	"T0013": {}, // donation payment
	"T0000": {}, // general received payment
	"T0011": {}, // mobile payment
	"T0001": {}, // masspay payment
}

// Classify maps a transaction's event code (and, where the code alone is
// ambiguous, its amount sign and status) onto an Action.
func Classify(txn *Transaction) (Action, error) {
	if _, ok := ignoredEventCodes[txn.EventCode]; ok {
		return ActionIgnore, nil
	}

	// negative T0000 is money out, not a donation
	if txn.EventCode == "T0000" && txn.GrossAmount < 0 {
		return ActionIgnore, nil
	}

	// a positive T1107 is a refund paid to the org, not by it
	if txn.EventCode == "T1107" {
		if txn.GrossAmount > 0 {
			return ActionIgnore, nil
		}
		return ActionRefund, nil
	}

	if _, ok := singleOpportunityEventCodes[txn.EventCode]; ok {
		return ActionSingleOpportunity, nil
	}

	if txn.EventCode != "T0002" {
		return ActionIgnore, &UnrecognizedEventCodeError{Code: txn.EventCode}
	}
	if txn.GrossAmount < 0 {
		return ActionIgnore, nil
	}
	if txn.Status != "S" {
		return ActionIgnore, ErrUnsettledSubscriptionPayment
	}
	return ActionSubscriptionPayment, nil
}
