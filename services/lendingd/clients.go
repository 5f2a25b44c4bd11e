package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"lumenlend/native/lending"
)

const collaboratorTimeout = 5 * time.Second

// httpClient wraps a collaborator base URL with JSON request plumbing.
type httpClient struct {
	base   string
	client *http.Client
}

func newHTTPClient(base string) *httpClient {
	return &httpClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: collaboratorTimeout},
	}
}

func (c *httpClient) postJSON(path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		if failure.Error != "" {
			return fmt.Errorf("%s: %s", path, failure.Error)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *httpClient) getJSON(path string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseWire(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", value)
	}
	return amount, nil
}

// vaultClient implements lending.CollateralVault against the custody service.
type vaultClient struct {
	*httpClient
}

func newVaultClient(base string) *vaultClient { return &vaultClient{newHTTPClient(base)} }

func (v *vaultClient) DepositsOf(account, token string) (*big.Int, error) {
	var out struct {
		Amount string `json:"amount"`
	}
	if err := v.getJSON(fmt.Sprintf("/v1/deposits/%s/%s", account, token), &out); err != nil {
		return nil, err
	}
	return parseWire(out.Amount)
}

func (v *vaultClient) SupportedTokens() ([]string, error) {
	var out struct {
		Tokens []string `json:"tokens"`
	}
	if err := v.getJSON("/v1/tokens", &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

func (v *vaultClient) ConfigOf(token string) (lending.TokenConfig, error) {
	var out struct {
		Enabled                 bool   `json:"enabled"`
		CollateralFactorBps     uint64 `json:"collateralFactorBps"`
		LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
		LiquidationPenaltyBps   uint64 `json:"liquidationPenaltyBps"`
		Decimals                uint8  `json:"decimals"`
	}
	if err := v.getJSON("/v1/tokens/"+token, &out); err != nil {
		return lending.TokenConfig{}, err
	}
	return lending.TokenConfig{
		Enabled:                 out.Enabled,
		CollateralFactorBps:     out.CollateralFactorBps,
		LiquidationThresholdBps: out.LiquidationThresholdBps,
		LiquidationPenaltyBps:   out.LiquidationPenaltyBps,
		Decimals:                out.Decimals,
	}, nil
}

func (v *vaultClient) Withdraw(token string, amount *big.Int, to string) error {
	payload := map[string]string{"token": token, "amount": amount.String(), "to": to}
	return v.postJSON("/v1/withdraw", payload, nil)
}

func (v *vaultClient) Seize(borrower, token string, amount *big.Int, liquidator string) error {
	payload := map[string]string{
		"borrower":   borrower,
		"token":      token,
		"amount":     amount.String(),
		"liquidator": liquidator,
	}
	return v.postJSON("/v1/seize", payload, nil)
}

// oracleClient implements lending.PriceOracle against the price service.
type oracleClient struct {
	*httpClient
}

func newOracleClient(base string) *oracleClient { return &oracleClient{newHTTPClient(base)} }

func (o *oracleClient) value(path, token string, amount *big.Int) (*big.Int, error) {
	payload := map[string]string{"token": token, "amount": amount.String()}
	var out struct {
		Value string `json:"value"`
	}
	if err := o.postJSON(path, payload, &out); err != nil {
		return nil, err
	}
	return parseWire(out.Value)
}

func (o *oracleClient) ValueUSD(token string, amount *big.Int) (*big.Int, error) {
	return o.value("/v1/value", token, amount)
}

func (o *oracleClient) ValueUSDUnsafe(token string, amount *big.Int) (*big.Int, error) {
	return o.value("/v1/value-unsafe", token, amount)
}

func (o *oracleClient) Price(token string) (*big.Int, error) {
	var out struct {
		Price string `json:"price"`
	}
	if err := o.getJSON("/v1/price/"+token, &out); err != nil {
		return nil, err
	}
	return parseWire(out.Price)
}

// authorityClient implements lending.StableAuthority against the issuance
// service.
type authorityClient struct {
	*httpClient
}

func newAuthorityClient(base string) *authorityClient {
	return &authorityClient{newHTTPClient(base)}
}

func (a *authorityClient) Mint(to string, amount *big.Int) error {
	return a.postJSON("/v1/mint", map[string]string{"to": to, "amount": amount.String()}, nil)
}

func (a *authorityClient) Burn(from string, amount *big.Int) error {
	return a.postJSON("/v1/burn", map[string]string{"from": from, "amount": amount.String()}, nil)
}

// yieldClient implements lending.YieldSink against the supplier pool service.
type yieldClient struct {
	*httpClient
	address string
}

func newYieldClient(base, address string) *yieldClient {
	return &yieldClient{httpClient: newHTTPClient(base), address: address}
}

func (y *yieldClient) Address() string { return y.address }

func (y *yieldClient) Receive(amount *big.Int) error {
	return y.postJSON("/v1/receive", map[string]string{"amount": amount.String()}, nil)
}

// supplyClient implements lending.SupplyEstimator via the issuance service's
// backing report.
type supplyClient struct {
	*httpClient
}

func newSupplyClient(base string) *supplyClient { return &supplyClient{newHTTPClient(base)} }

func (s *supplyClient) TotalBacking() (*big.Int, error) {
	var out struct {
		Backing string `json:"backing"`
	}
	if err := s.getJSON("/v1/backing", &out); err != nil {
		return nil, err
	}
	return parseWire(out.Backing)
}
