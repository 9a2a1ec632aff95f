package recon

import (
	"context"
	"time"

	"github.com/mmdatafocus/recon_backend/rede"
	"github.com/mmdatafocus/recon_backend/sankhya"
)

// Outcome is the result of one reconciliation run. The JSON keys are part
// of the API contract consumed by the ERP-side automation.
type Outcome struct {
	Success bool   `json:"sucesso"`
	Message string `json:"mensagem"`
}

// Authenticator yields a valid access token for one upstream system.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

// SalesGateway is the acquirer settlement API surface the engine needs.
type SalesGateway interface {
	ConsultInstallments(ctx context.Context, token string, companyNumber int64, startDate time.Time, endDate time.Time, nsu int64) (*rede.InstallmentsResult, error)
	ConsultCreditOrderPayments(ctx context.Context, token string, companyNumber int64, startDate time.Time, endDate time.Time) (*rede.CreditOrdersResult, error)
}

// FinancialLedger is the ERP financial API surface the engine needs.
type FinancialLedger interface {
	FetchBySummaryNumbers(ctx context.Context, token string, summaryNumbers []int64) ([]sankhya.Record, error)
	Update(ctx context.Context, token string, units []sankhya.UpdateUnit) (bool, error)
}
