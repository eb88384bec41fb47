package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WalletConfig configures the e-wallet redirect provider.
type WalletConfig struct {
	Endpoint string
	Secret   string
	Clock    func() time.Time
}

// WalletProvider builds signed redirect URLs for domestic e-wallet gateways.
// The gateway verifies the HMAC over the query parameters and calls back once
// the customer approves the charge.
type WalletProvider struct {
	endpoint *url.URL
	secret   []byte
	clock    func() time.Time
}

// NewWalletProvider constructs an e-wallet provider.
func NewWalletProvider(cfg WalletConfig) (*WalletProvider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("wallet: endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("wallet: endpoint must be an absolute url")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("wallet: signing secret is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &WalletProvider{
		endpoint: parsed,
		secret:   []byte(cfg.Secret),
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Initiate returns a signed redirect URL. The order stays pending until the
// gateway calls back with the payment result.
func (p *WalletProvider) Initiate(_ context.Context, req InitiateRequest) (Initiation, error) {
	if p == nil {
		return Initiation{}, errors.New("wallet: provider is nil")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return Initiation{}, errors.New("wallet: order reference is required")
	}

	issuedAt := p.clock()
	expiresAt := issuedAt.Add(15 * time.Minute)

	query := url.Values{}
	query.Set("reference", req.Reference)
	query.Set("amount", strconv.FormatInt(req.Amount, 10))
	query.Set("currency", "VND")
	query.Set("issued_at", strconv.FormatInt(issuedAt.Unix(), 10))
	query.Set("expires_at", strconv.FormatInt(expiresAt.Unix(), 10))
	query.Set("signature", p.Sign(query))

	redirect := *p.endpoint
	redirect.RawQuery = query.Encode()

	return Initiation{
		Settled:     false,
		Reference:   req.Reference,
		RedirectURL: redirect.String(),
		ExpiresAt:   expiresAt,
	}, nil
}

// Sign computes the hex HMAC-SHA256 over the sorted query parameters,
// excluding any existing signature parameter.
func (p *WalletProvider) Sign(query url.Values) string {
	filtered := url.Values{}
	for key, values := range query {
		if key == "signature" {
			continue
		}
		filtered[key] = values
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(filtered.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a gateway callback signature in constant time.
func (p *WalletProvider) VerifySignature(query url.Values, signature string) bool {
	if p == nil || strings.TrimSpace(signature) == "" {
		return false
	}
	expected := p.Sign(query)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
