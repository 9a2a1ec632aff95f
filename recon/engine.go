package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/recon_backend/config"
	"github.com/mmdatafocus/recon_backend/sankhya"
	"github.com/mmdatafocus/recon_backend/utils"
)

// Engine reconciles acquirer settlement data into the ERP financial
// entries. Both flows authenticate against the two systems, pull the
// acquirer data, pair it with financial entries and write the result back
// through the ledger.
type Engine struct {
	redeAuth  Authenticator
	snkAuth   Authenticator
	sales     SalesGateway
	financial FinancialLedger
	logger    *logrus.Logger
}

func NewEngine(redeAuth Authenticator, snkAuth Authenticator, sales SalesGateway, financial FinancialLedger) *Engine {
	return &Engine{
		redeAuth:  redeAuth,
		snkAuth:   snkAuth,
		sales:     sales,
		financial: financial,
		logger:    config.GetLogger(),
	}
}

// UpdateFinancialData reconciles the installments of one sale into the
// caller-supplied financial entries. The entries must already be ordered
// by split number so positional pairing with the acquirer installments
// holds.
func (e *Engine) UpdateFinancialData(ctx context.Context, companyNumber int64, saleDate time.Time, nsu int64, financial []sankhya.Record) Outcome {
	var (
		snkToken  string
		redeToken string
		saleData  any
		payload   any
	)

	fail := func(msg string) Outcome {
		full := fmt.Sprintf("failed to update financial entries: %s", msg)
		e.logger.WithFields(logrus.Fields{
			"module":        "recon",
			"funcName":      "UpdateFinancialData",
			"companyNumber": companyNumber,
			"saleDate":      utils.FormatDateISO(saleDate),
			"nsu":           nsu,
			"sankhyaToken":  snkToken,
			"redeToken":     redeToken,
			"gatewayData":   saleData,
			"updatePayload": payload,
		}).Error(full)
		return Outcome{Success: false, Message: full}
	}

	var err error
	snkToken, err = e.snkAuth.Authenticate(ctx)
	if err != nil {
		return fail(fmt.Sprintf("ledger authentication failed: %v", err))
	}
	redeToken, err = e.redeAuth.Authenticate(ctx)
	if err != nil {
		return fail(fmt.Sprintf("acquirer authentication failed: %v", err))
	}

	result, err := e.sales.ConsultInstallments(ctx, redeToken, companyNumber, saleDate, saleDate, nsu)
	if err != nil {
		return fail(err.Error())
	}
	saleData = result
	if result.Message != "" {
		return fail(result.Message)
	}

	units, err := FormatSalePayload(result.Content.Installments, financial)
	if err != nil {
		return fail(err.Error())
	}
	payload = units

	ok, err := e.financial.Update(ctx, snkToken, units)
	if err != nil {
		return fail(err.Error())
	}
	if !ok {
		return fail("financial update was not accepted")
	}

	return Outcome{Success: true}
}

// UpdatePaymentData reconciles the credit-order payments settled in the
// date range into the financial entries that share their settlement
// summary numbers. A period without payments is a successful run; the
// outcome message says so and no ledger call is made.
func (e *Engine) UpdatePaymentData(ctx context.Context, companyNumber int64, startDate time.Time, endDate time.Time) Outcome {
	var (
		snkToken    string
		redeToken   string
		paymentData any
		payload     any
	)

	fail := func(msg string) Outcome {
		full := fmt.Sprintf("failed to update payment entries: %s", msg)
		e.logger.WithFields(logrus.Fields{
			"module":        "recon",
			"funcName":      "UpdatePaymentData",
			"companyNumber": companyNumber,
			"startDate":     utils.FormatDateISO(startDate),
			"endDate":       utils.FormatDateISO(endDate),
			"sankhyaToken":  snkToken,
			"redeToken":     redeToken,
			"gatewayData":   paymentData,
			"updatePayload": payload,
		}).Error(full)
		return Outcome{Success: false, Message: full}
	}

	var err error
	snkToken, err = e.snkAuth.Authenticate(ctx)
	if err != nil {
		return fail(fmt.Sprintf("ledger authentication failed: %v", err))
	}
	redeToken, err = e.redeAuth.Authenticate(ctx)
	if err != nil {
		return fail(fmt.Sprintf("acquirer authentication failed: %v", err))
	}

	result, err := e.sales.ConsultCreditOrderPayments(ctx, redeToken, companyNumber, startDate, endDate)
	if err != nil {
		return fail(err.Error())
	}
	paymentData = result
	if result.Message != "" {
		return fail(result.Message)
	}

	payments := result.Content.PaymentsCreditOrders
	if len(payments) == 0 {
		return Outcome{
			Success: true,
			Message: fmt.Sprintf("no payments found for the period (%s-%s)", utils.FormatDateBR(startDate), utils.FormatDateBR(endDate)),
		}
	}

	summaryNumbers := make([]int64, 0, len(payments))
	for _, p := range payments {
		summaryNumbers = append(summaryNumbers, p.SaleSummaryNumber)
	}

	financial, err := e.financial.FetchBySummaryNumbers(ctx, snkToken, summaryNumbers)
	if err != nil {
		return fail(err.Error())
	}
	if len(financial) == 0 {
		return fail("no financial entries found for the settlement summary numbers")
	}

	units, err := FormatPaymentPayload(payments, financial)
	if err != nil {
		return fail(err.Error())
	}
	payload = units

	ok, err := e.financial.Update(ctx, snkToken, units)
	if err != nil {
		return fail(err.Error())
	}
	if !ok {
		return fail("financial update was not accepted")
	}

	return Outcome{Success: true}
}
