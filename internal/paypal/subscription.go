package paypal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	crmdomain "github.com/donorsync/donorsync/internal/crm/domain"
)

// Subscription statuses the engine understands. Anything else is treated as
// a fatal classification error by the caller.
const (
	SubscriptionActive    = "ACTIVE"
	SubscriptionCancelled = "CANCELLED"
	SubscriptionSuspended = "SUSPENDED"
)

// Subscription is the canonical form of a PayPal billing subscription.
// InstallmentPeriod is inferred from the gap between the last payment and the
// next billing time; it stays PeriodNone when the subscription is cancelled
// or suspended (no next billing time to measure against) or when the gap
// matches no supported cadence.
type Subscription struct {
	ID                string
	Status            string
	Email             string
	Amount            float64
	PayerID           string
	LastPaymentDate   time.Time
	CreateTime        time.Time
	InstallmentPeriod crmdomain.InstallmentPeriod
}

// Active reports whether the subscription is still collecting.
func (s *Subscription) Active() bool { return s.Status == SubscriptionActive }

type rawSubscription struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CreateTime string `json:"create_time"`
	Subscriber struct {
		EmailAddress string `json:"email_address"`
		PayerID      string `json:"payer_id"`
	} `json:"subscriber"`
	BillingInfo struct {
		LastPayment struct {
			Time   string `json:"time"`
			Amount money  `json:"amount"`
		} `json:"last_payment"`
		NextBillingTime string `json:"next_billing_time"`
	} `json:"billing_info"`
}

// ParseSubscription decodes a billing subscription and infers its cadence.
// A gap of 27-31 days is monthly, 361-366 days is yearly.
func ParseSubscription(data json.RawMessage) (*Subscription, error) {
	var raw rawSubscription
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}

	lastPayment, err := time.Parse(dateFormat, raw.BillingInfo.LastPayment.Time)
	if err != nil {
		return nil, fmt.Errorf("parse subscription %s last payment time: %w", raw.ID, err)
	}
	amount, err := raw.BillingInfo.LastPayment.Amount.amount()
	if err != nil {
		return nil, fmt.Errorf("parse subscription %s amount: %w", raw.ID, err)
	}
	var created time.Time
	if raw.CreateTime != "" {
		if created, err = time.Parse(dateFormat, raw.CreateTime); err != nil {
			return nil, fmt.Errorf("parse subscription %s create time: %w", raw.ID, err)
		}
	}

	sub := &Subscription{
		ID:              raw.ID,
		Status:          raw.Status,
		Email:           strings.ToLower(raw.Subscriber.EmailAddress),
		Amount:          amount,
		PayerID:         raw.Subscriber.PayerID,
		LastPaymentDate: midnightUTC(lastPayment),
		CreateTime:      created,
	}

	if sub.Status == SubscriptionCancelled || sub.Status == SubscriptionSuspended {
		return sub, nil
	}

	nextBilling, err := time.Parse(dateFormat, raw.BillingInfo.NextBillingTime)
	if err != nil {
		return nil, fmt.Errorf("parse subscription %s next billing time: %w", raw.ID, err)
	}
	days := int(midnightUTC(nextBilling).Sub(sub.LastPaymentDate).Hours() / 24)
	switch {
	case days >= 27 && days <= 31:
		sub.InstallmentPeriod = crmdomain.PeriodMonthly
	case days > 360 && days <= 366:
		sub.InstallmentPeriod = crmdomain.PeriodYearly
	}
	return sub, nil
}
