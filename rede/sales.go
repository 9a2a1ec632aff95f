package rede

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/recon_backend/config"
	"github.com/mmdatafocus/recon_backend/utils"
)

// resolveBaseURL maps a package/environment pair to its configured API base
// URL, using the same suffix convention as the auth endpoints.
func resolveBaseURL(pkg string, environment string) (string, error) {
	var suffix string
	switch pkg {
	case PackagePayment:
		suffix = "P"
	case PackageSales:
		suffix = "S"
	default:
		return "", fmt.Errorf("unknown package %q", pkg)
	}
	switch environment {
	case EnvironmentStaging:
		suffix += "T"
	case EnvironmentProduction:
		suffix += "P"
	default:
		return "", fmt.Errorf("unknown environment %q", environment)
	}

	base := strings.TrimRight(os.Getenv("URL_"+suffix), "/")
	if base == "" {
		return "", fmt.Errorf("missing URL_%s", suffix)
	}
	return base, nil
}

// Sales queries the acquirer's settlement endpoints.
type Sales struct {
	environment string
	http        *http.Client
}

func NewSales() *Sales {
	environment := strings.TrimSpace(os.Getenv("REDE_ENVIRONMENT"))
	if environment == "" {
		environment = EnvironmentProduction
	}
	return &Sales{
		environment: environment,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

// ForEnvironment returns a copy of the client bound to an explicit
// environment. API callers may target staging per request while the daily
// routine keeps the configured default.
func (s *Sales) ForEnvironment(environment string) *Sales {
	return &Sales{environment: environment, http: s.http}
}

func (s *Sales) get(ctx context.Context, token string, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return res.StatusCode, nil, &APIError{Status: res.StatusCode, Body: string(body)}
	}
	return res.StatusCode, body, nil
}

// ConsultInstallments queries settlement installments. When nsu is set the
// single-sale endpoint is used with startDate as the sale date; otherwise
// the period endpoint is used with the full range. A 204 means the acquirer
// has no data for that NSU and date, which is reported through Message
// rather than as an error.
func (s *Sales) ConsultInstallments(ctx context.Context, token string, companyNumber int64, startDate time.Time, endDate time.Time, nsu int64) (*InstallmentsResult, error) {
	base, err := resolveBaseURL(PackageSales, s.environment)
	if err != nil {
		return nil, err
	}

	var rawURL string
	if nsu > 0 {
		q := url.Values{}
		q.Set("saleDate", utils.FormatDateISO(startDate))
		q.Set("nsu", fmt.Sprintf("%d", nsu))
		rawURL = fmt.Sprintf("%s/v2/payments/installments/%d?%s", base, companyNumber, q.Encode())
	} else {
		q := url.Values{}
		q.Set("parentCompanyNumber", fmt.Sprintf("%d", companyNumber))
		q.Set("subsidiaries", fmt.Sprintf("%d", companyNumber))
		q.Set("startDate", utils.FormatDateISO(startDate))
		q.Set("endDate", utils.FormatDateISO(endDate))
		rawURL = fmt.Sprintf("%s/v1/sales/installments?%s", base, q.Encode())
	}

	status, body, err := s.get(ctx, token, rawURL)
	if err != nil {
		config.LogError(config.GetLogger(), "rede", "ConsultInstallments", "querying installments", rawURL, err)
		return nil, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return &InstallmentsResult{
			Message: fmt.Sprintf("query returned no data. NSU: %d. Date: %s", nsu, utils.FormatDateISO(startDate)),
		}, nil
	}

	var result InstallmentsResult
	if err := json.Unmarshal(body, &result); err != nil {
		config.LogError(config.GetLogger(), "rede", "ConsultInstallments", "decoding response", string(body), err)
		return nil, err
	}
	return &result, nil
}

// ConsultCreditOrderPayments queries credit-order payment events settled in
// the date range. An empty body means the acquirer has no payments for the
// period, which is reported through Message rather than as an error.
func (s *Sales) ConsultCreditOrderPayments(ctx context.Context, token string, companyNumber int64, startDate time.Time, endDate time.Time) (*CreditOrdersResult, error) {
	base, err := resolveBaseURL(PackageSales, s.environment)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("parentCompanyNumber", fmt.Sprintf("%d", companyNumber))
	q.Set("subsidiaries", fmt.Sprintf("%d", companyNumber))
	q.Set("startDate", utils.FormatDateISO(startDate))
	q.Set("endDate", utils.FormatDateISO(endDate))
	rawURL := fmt.Sprintf("%s/v1/payments/credit-orders?%s", base, q.Encode())

	status, body, err := s.get(ctx, token, rawURL)
	if err != nil {
		config.LogError(config.GetLogger(), "rede", "ConsultCreditOrderPayments", "querying credit orders", rawURL, err)
		return nil, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return &CreditOrdersResult{
			Message: fmt.Sprintf("no payments found between %s and %s", utils.FormatDateISO(startDate), utils.FormatDateISO(endDate)),
		}, nil
	}

	var result CreditOrdersResult
	if err := json.Unmarshal(body, &result); err != nil {
		config.LogError(config.GetLogger(), "rede", "ConsultCreditOrderPayments", "decoding response", string(body), err)
		return nil, err
	}
	return &result, nil
}

// ConsultPaymentByID fetches a single payment event by its acquirer id.
func (s *Sales) ConsultPaymentByID(ctx context.Context, token string, companyNumber int64, paymentID string) (*PaymentDetail, error) {
	base, err := resolveBaseURL(PackageSales, s.environment)
	if err != nil {
		return nil, err
	}
	rawURL := fmt.Sprintf("%s/v1/payments/%d/%s", base, companyNumber, url.PathEscape(paymentID))

	status, body, err := s.get(ctx, token, rawURL)
	if err != nil {
		config.LogError(config.GetLogger(), "rede", "ConsultPaymentByID", "querying payment", rawURL, err)
		return nil, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return &PaymentDetail{}, nil
	}

	var detail PaymentDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		config.LogError(config.GetLogger(), "rede", "ConsultPaymentByID", "decoding response", string(body), err)
		return nil, err
	}
	return &detail, nil
}
