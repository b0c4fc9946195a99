// Package paypal adapts the PayPal reporting, billing and OAuth APIs into the
// canonical shapes the reconciliation engine consumes.
package paypal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateFormat is the timestamp layout PayPal uses across the reporting and
// billing APIs.
const dateFormat = "2006-01-02T15:04:05Z0700"

// Name is a payer name resolved from whichever of the three name shapes the
// transaction happens to carry.
type Name struct {
	First string
	Last  string
}

// Address is a payer mailing address. Nil on the transaction when any
// component is missing; partial addresses are not useful downstream.
type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Transaction is the canonical form of one PayPal transaction event.
type Transaction struct {
	ID              string
	EventCode       string
	ReferenceID     string
	ReferenceIDType string
	AccountID       string

	// Date is the transaction initiation date at UTC midnight. Time of day
	// is dropped so temporal matching works in whole days.
	Date time.Time

	GrossAmount float64
	FeeAmount   float64
	Status      string
	Subject     string
	Email       string
	Note        string

	Name    *Name
	Address *Address
}

type money struct {
	Value string `json:"value"`
}

func (m *money) amount() (float64, error) {
	if m == nil || m.Value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(m.Value, 64)
}

type rawAddress struct {
	Line1       string `json:"line1"`
	Line2       string `json:"line2"`
	City        *string `json:"city"`
	State       *string `json:"state"`
	PostalCode  *string `json:"postal_code"`
	CountryCode *string `json:"country_code"`
}

type rawTransaction struct {
	TransactionInfo struct {
		TransactionID             string `json:"transaction_id"`
		TransactionEventCode      string `json:"transaction_event_code"`
		TransactionInitiationDate string `json:"transaction_initiation_date"`
		TransactionAmount         money  `json:"transaction_amount"`
		FeeAmount                 *money `json:"fee_amount"`
		TransactionStatus         string `json:"transaction_status"`
		TransactionSubject        string `json:"transaction_subject"`
		TransactionNote           string `json:"transaction_note"`
		PaypalReferenceID         string `json:"paypal_reference_id"`
		PaypalReferenceIDType     string `json:"paypal_reference_id_type"`
		PaypalAccountID           string `json:"paypal_account_id"`
	} `json:"transaction_info"`
	PayerInfo struct {
		EmailAddress string `json:"email_address"`
		PayerName    struct {
			GivenName         string  `json:"given_name"`
			Surname           *string `json:"surname"`
			AlternateFullName *string `json:"alternate_full_name"`
		} `json:"payer_name"`
	} `json:"payer_info"`
	ShippingInfo struct {
		Name    string      `json:"name"`
		Address *rawAddress `json:"address"`
	} `json:"shipping_info"`
}

// ParseTransaction decodes a single transaction_details element into its
// canonical form. The fee amount is reported negative by PayPal and is
// reversed here so net = gross - fee downstream.
func ParseTransaction(data json.RawMessage) (*Transaction, error) {
	var raw rawTransaction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	info := raw.TransactionInfo
	initiated, err := time.Parse(dateFormat, info.TransactionInitiationDate)
	if err != nil {
		return nil, fmt.Errorf("parse transaction %s initiation date: %w", info.TransactionID, err)
	}
	gross, err := info.TransactionAmount.amount()
	if err != nil {
		return nil, fmt.Errorf("parse transaction %s gross amount: %w", info.TransactionID, err)
	}
	fee, err := info.FeeAmount.amount()
	if err != nil {
		return nil, fmt.Errorf("parse transaction %s fee amount: %w", info.TransactionID, err)
	}

	return &Transaction{
		ID:              info.TransactionID,
		EventCode:       info.TransactionEventCode,
		ReferenceID:     info.PaypalReferenceID,
		ReferenceIDType: info.PaypalReferenceIDType,
		AccountID:       info.PaypalAccountID,
		Date:            midnightUTC(initiated),
		GrossAmount:     gross,
		FeeAmount:       -fee,
		Status:          info.TransactionStatus,
		Subject:         info.TransactionSubject,
		Email:           strings.ToLower(raw.PayerInfo.EmailAddress),
		Note:            info.TransactionNote,
		Name:            nameFromRaw(raw),
		Address:         addressFromRaw(raw),
	}, nil
}

// nameFromRaw resolves the payer name, trying the structured payer name,
// then the shipping name ("Last, First" or "First ... Last"), then the
// alternate full name. Returns nil when no shape yields one.
func nameFromRaw(raw rawTransaction) *Name {
	payer := raw.PayerInfo.PayerName
	if payer.Surname != nil {
		return &Name{First: payer.GivenName, Last: *payer.Surname}
	}

	if shipping := raw.ShippingInfo.Name; shipping != "" {
		if first, last, ok := strings.Cut(shipping, ","); ok {
			return &Name{First: strings.TrimSpace(first), Last: strings.TrimSpace(last)}
		}
		return splitFullName(shipping)
	}

	if payer.AlternateFullName != nil {
		return splitFullName(*payer.AlternateFullName)
	}
	return nil
}

func splitFullName(full string) *Name {
	full = strings.TrimSpace(full)
	i := strings.LastIndex(full, " ")
	if i < 0 {
		return nil
	}
	return &Name{First: full[:i], Last: full[i+1:]}
}

func addressFromRaw(raw rawTransaction) *Address {
	addr := raw.ShippingInfo.Address
	if addr == nil || addr.City == nil || addr.State == nil || addr.PostalCode == nil || addr.CountryCode == nil {
		return nil
	}
	street := addr.Line1
	if addr.Line2 != "" {
		street = addr.Line1 + ", " + addr.Line2
	}
	return &Address{
		Street:     street,
		City:       *addr.City,
		State:      *addr.State,
		PostalCode: *addr.PostalCode,
		Country:    *addr.CountryCode,
	}
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
