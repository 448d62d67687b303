package brex

import (
	"fmt"

	"hookswitch/pkg/webhook"
)

// Event names accepted by New.
const (
	ExpensePaymentUpdated = "expense_payment_updated"
	TransferProcessed     = "transfer_processed"
	TransferFailed        = "transfer_failed"
)

// Amount is a Brex money value in minor units.
type Amount struct {
	Amount   int64   `json:"amount"`
	Currency *string `json:"currency"`
}

// ExpensePaymentUpdatedPayload is sent when a card expense changes payment state.
type ExpensePaymentUpdatedPayload struct {
	EventType           string  `json:"event_type"`
	ExpenseID           string  `json:"expense_id"`
	PaymentStatus       string  `json:"payment_status"`
	PaymentStatusReason string  `json:"payment_status_reason"`
	PaymentType         string  `json:"payment_type"`
	CompanyID           string  `json:"company_id,omitempty"`
	PurchasedAt         string  `json:"purchased_at"`
	OriginalAmount      *Amount `json:"original_amount"`
	BillingAmount       *Amount `json:"billing_amount"`
	CardID              string  `json:"card_id"`
	Merchant            *struct {
		RawDescriptor string `json:"raw_descriptor"`
		MCC           string `json:"mcc"`
		Country       string `json:"country"`
	} `json:"merchant"`
	PaymentAuthorizationCode string `json:"payment_authorization_code"`
}

// TransferPayload is sent for TRANSFER_PROCESSED and TRANSFER_FAILED.
type TransferPayload struct {
	EventType     string `json:"event_type"`
	TransferID    string `json:"transfer_id"`
	CompanyID     string `json:"company_id,omitempty"`
	ReturnForID   string `json:"return_for_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Catalog lists every Brex event the adapter understands.
var Catalog = webhook.Catalog{
	{
		Name:  ExpensePaymentUpdated,
		Wire:  "EXPENSE_PAYMENT_UPDATED",
		Match: eventType("EXPENSE_PAYMENT_UPDATED"),
		Parse: func(p webhook.Payload) (interface{}, error) {
			var out ExpensePaymentUpdatedPayload
			if err := p.Decode(&out); err != nil {
				return nil, err
			}
			if out.ExpenseID == "" {
				return nil, fmt.Errorf("%w: brex expense_id missing", webhook.ErrMalformedPayload)
			}
			return out, nil
		},
	},
	{Name: TransferProcessed, Wire: "TRANSFER_PROCESSED", Match: eventType("TRANSFER_PROCESSED"), Parse: parseTransfer},
	{Name: TransferFailed, Wire: "TRANSFER_FAILED", Match: eventType("TRANSFER_FAILED"), Parse: parseTransfer},
}

func eventType(want string) func(webhook.Payload) bool {
	return func(p webhook.Payload) bool {
		return p.String("event_type") == want
	}
}

func parseTransfer(p webhook.Payload) (interface{}, error) {
	var out TransferPayload
	if err := p.Decode(&out); err != nil {
		return nil, err
	}
	if out.TransferID == "" {
		return nil, fmt.Errorf("%w: brex transfer_id missing", webhook.ErrMalformedPayload)
	}
	return out, nil
}
