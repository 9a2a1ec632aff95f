package rede

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mmdatafocus/recon_backend/config"
)

// PaymentLink queries and creates acquirer payment links. It uses the
// payment package endpoints, which live on a separate base URL from the
// sales package.
type PaymentLink struct {
	http *http.Client
}

func NewPaymentLink() *PaymentLink {
	return &PaymentLink{http: &http.Client{Timeout: 30 * time.Second}}
}

// ConsultLinkDetails fetches the details of an existing payment link.
func (p *PaymentLink) ConsultLinkDetails(ctx context.Context, environment string, token string, paymentLinkID string, companyNumber int64) (map[string]any, error) {
	base, err := resolveBaseURL(PackagePayment, environment)
	if err != nil {
		return nil, err
	}
	rawURL := fmt.Sprintf("%s/details/%s", base, url.PathEscape(paymentLinkID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Company-number", fmt.Sprintf("%d", companyNumber))

	return p.do(req, "ConsultLinkDetails")
}

// CreateLink creates a new payment link from the caller-supplied body.
func (p *PaymentLink) CreateLink(ctx context.Context, environment string, token string, companyNumber int64, body map[string]any) (map[string]any, error) {
	base, err := resolveBaseURL(PackagePayment, environment)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/create", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Company-number", fmt.Sprintf("%d", companyNumber))

	return p.do(req, "CreateLink")
}

func (p *PaymentLink) do(req *http.Request, funcName string) (map[string]any, error) {
	res, err := p.http.Do(req)
	if err != nil {
		config.LogError(config.GetLogger(), "rede", funcName, "calling payment link api", req.URL.String(), err)
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &APIError{Status: res.StatusCode, Body: string(body)}
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		config.LogError(config.GetLogger(), "rede", funcName, "decoding response", string(body), err)
		return nil, err
	}
	return data, nil
}
