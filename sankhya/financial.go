package sankhya

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/recon_backend/config"
)

const defaultGatewayURL = "https://api.sankhya.com.br/gateway/v1/mge/service.sbr"

// updateFields is the positional field list of the DatasetSP.save call.
// UpdateUnit values are keyed by the index into this list.
var updateFields = []string{
	"AD_REDE_AMOUNT",
	"AD_REDE_EXPIRATIONDATE",
	"AD_REDE_INSTALLMENTNUM",
	"AD_REDE_MDRAMOUNT",
	"AD_REDE_MDRFEE",
	"AD_REDE_NETAMOUNT",
	"AD_REDE_PAYMENTDATE",
	"AD_REDE_PAYMENTID",
	"AD_REDE_PROCESSADO",
	"AD_REDE_TID",
}

// FinancialQuery selects financial entries by exactly one criterion. The
// first non-zero field wins, in declaration order.
type FinancialQuery struct {
	Nufin          int64
	Nunota         int64
	Numnota        int64
	SummaryNumbers []int64
}

// UpdateUnit is one record of a DatasetSP.save call: the primary key of the
// financial entry plus positional values keyed by field index.
type UpdateUnit struct {
	PK     map[string]any `json:"pk"`
	Values map[string]any `json:"values"`
}

// Financial reads and updates financial entries through the ERP gateway.
type Financial struct {
	gatewayURL string
	http       *http.Client
}

func NewFinancial() *Financial {
	gatewayURL := strings.TrimSpace(os.Getenv("SANKHYA_GATEWAY_URL"))
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}
	return &Financial{
		gatewayURL: gatewayURL,
		http:       &http.Client{Timeout: 60 * time.Second},
	}
}

func (q FinancialQuery) criteria() (map[string]any, error) {
	param := func(v int64) []map[string]any {
		return []map[string]any{{"$": strconv.FormatInt(v, 10), "type": "I"}}
	}

	switch {
	case q.Nufin > 0:
		return map[string]any{
			"expression": map[string]any{"$": "this.NUFIN = ?"},
			"parameter":  param(q.Nufin),
		}, nil
	case q.Nunota > 0:
		return map[string]any{
			"expression": map[string]any{"$": "this.NUNOTA = ?"},
			"parameter":  param(q.Nunota),
		}, nil
	case q.Numnota > 0:
		return map[string]any{
			"expression": map[string]any{"$": "this.NUMNOTA = ?"},
			"parameter":  param(q.Numnota),
		}, nil
	case len(q.SummaryNumbers) > 0:
		placeholders := make([]string, len(q.SummaryNumbers))
		params := make([]map[string]any, len(q.SummaryNumbers))
		for i, n := range q.SummaryNumbers {
			placeholders[i] = "?"
			params[i] = map[string]any{"$": strconv.FormatInt(n, 10), "type": "I"}
		}
		return map[string]any{
			"expression": map[string]any{
				"$": fmt.Sprintf("this.AD_REDE_SALESUMNUM IN (%s)", strings.Join(placeholders, ", ")),
			},
			"parameter": params,
		}, nil
	}
	return nil, fmt.Errorf("no search criterion provided")
}

// Fetch loads financial entries matching the query and returns them
// normalized.
func (f *Financial) Fetch(ctx context.Context, token string, query FinancialQuery) ([]Record, error) {
	criteria, err := query.criteria()
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"serviceName": serviceLoadRecords,
		"requestBody": map[string]any{
			"dataSet": map[string]any{
				"rootEntity":                "Financeiro",
				"includePresentationFields": "N",
				"offsetPage":                "0",
				"criteria":                  criteria,
				"entity": map[string]any{
					"fieldset": map[string]any{"list": "*"},
				},
			},
		},
	}

	res, err := f.call(ctx, token, http.MethodGet, serviceLoadRecords, payload)
	if err != nil {
		config.LogError(config.GetLogger(), "sankhya", "Fetch", "loading financial entries", criteria, err)
		return nil, err
	}
	return FormatResponse(res), nil
}

// FetchBySummaryNumbers loads the financial entries linked to the given
// settlement summary numbers.
func (f *Financial) FetchBySummaryNumbers(ctx context.Context, token string, summaryNumbers []int64) ([]Record, error) {
	return f.Fetch(ctx, token, FinancialQuery{SummaryNumbers: summaryNumbers})
}

// Update writes the settlement fields of the given records through
// DatasetSP.save. It returns true only when the gateway reports full
// success (status "1"); status "0" is an accepted response but not a
// successful update.
func (f *Financial) Update(ctx context.Context, token string, units []UpdateUnit) (bool, error) {
	payload := map[string]any{
		"serviceName": serviceDatasetSave,
		"requestBody": map[string]any{
			"entityName": "Financeiro",
			"standAlone": false,
			"fields":     updateFields,
			"records":    units,
		},
	}

	res, err := f.call(ctx, token, http.MethodPost, serviceDatasetSave, payload)
	if err != nil {
		config.LogError(config.GetLogger(), "sankhya", "Update", "saving financial entries", units, err)
		return false, err
	}
	return res.Status == "1", nil
}

// call posts a service payload to the gateway and validates the envelope.
// The gateway rejects anything with a status outside {"0", "1"}.
func (f *Financial) call(ctx context.Context, token string, method string, serviceName string, payload any) (*ServiceResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	rawURL := fmt.Sprintf("%s?serviceName=%s&outputType=json", f.gatewayURL, serviceName)
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &APIError{Status: res.StatusCode, Body: string(resBody)}
	}

	var envelope ServiceResponse
	if err := json.Unmarshal(resBody, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status != "0" && envelope.Status != "1" {
		return nil, &APIError{Status: res.StatusCode, Body: string(resBody)}
	}
	return &envelope, nil
}
