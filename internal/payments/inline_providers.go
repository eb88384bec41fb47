package payments

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// CashProvider settles cash-on-delivery payments immediately. The courier
// collects the amount at the door, so nothing is owed at checkout time.
type CashProvider struct{}

// NewCashProvider constructs a cash-on-delivery provider.
func NewCashProvider() *CashProvider {
	return &CashProvider{}
}

// Initiate settles the payment without contacting any gateway.
func (p *CashProvider) Initiate(_ context.Context, req InitiateRequest) (Initiation, error) {
	return Initiation{
		Settled:   true,
		Reference: req.Reference,
	}, nil
}

// BankTransferConfig carries the beneficiary details customers transfer to.
type BankTransferConfig struct {
	AccountName   string
	AccountNumber string
	BankName      string
}

// BankTransferProvider settles bank transfer orders immediately and returns
// transfer instructions. Reconciliation of the incoming transfer happens out
// of band.
type BankTransferProvider struct {
	cfg BankTransferConfig
}

// NewBankTransferProvider constructs a bank transfer provider.
func NewBankTransferProvider(cfg BankTransferConfig) (*BankTransferProvider, error) {
	if strings.TrimSpace(cfg.AccountNumber) == "" {
		return nil, errors.New("bank transfer: account number is required")
	}
	return &BankTransferProvider{cfg: cfg}, nil
}

// Initiate settles the payment and attaches manual transfer instructions.
func (p *BankTransferProvider) Initiate(_ context.Context, req InitiateRequest) (Initiation, error) {
	if p == nil {
		return Initiation{}, errors.New("bank transfer: provider is nil")
	}
	return Initiation{
		Settled:   true,
		Reference: req.Reference,
		Instructions: map[string]string{
			"account_name":   p.cfg.AccountName,
			"account_number": p.cfg.AccountNumber,
			"bank_name":      p.cfg.BankName,
			"amount":         strconv.FormatInt(req.Amount, 10),
			"transfer_note":  req.Reference,
		},
	}, nil
}
