package recon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mmdatafocus/recon_backend/rede"
	"github.com/mmdatafocus/recon_backend/sankhya"
	"github.com/mmdatafocus/recon_backend/utils"
)

const apiVersion = "1.0.0"

// FinancialUpdater runs the per-sale reconciliation flow.
type FinancialUpdater interface {
	UpdateFinancialData(ctx context.Context, companyNumber int64, saleDate time.Time, nsu int64, financial []sankhya.Record) Outcome
}

// PaymentUpdater runs the period reconciliation flow.
type PaymentUpdater interface {
	UpdatePaymentData(ctx context.Context, companyNumber int64, startDate time.Time, endDate time.Time) Outcome
}

type tokenRequest struct {
	Ambiente string `json:"ambiente"`
	Pacote   string `json:"pacote"`
	Auth     string `json:"auth"`
}

type salesRequest struct {
	Ambiente      string `json:"ambiente"`
	CompanyNumber int64  `json:"companyNumber"`
	Nsu           int64  `json:"nsu"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
}

type paymentByIDRequest struct {
	Ambiente      string `json:"ambiente"`
	CompanyNumber int64  `json:"companyNumber"`
	PaymentID     string `json:"paymentId"`
}

type linkDetailsRequest struct {
	Ambiente      string `json:"ambiente"`
	PaymentLinkID string `json:"paymentLinkId"`
	CompanyNumber int64  `json:"companyNumber"`
}

type linkCreateRequest struct {
	Ambiente      string         `json:"ambiente"`
	CompanyNumber int64          `json:"companyNumber"`
	Body          map[string]any `json:"body"`
}

type financialUpdateRequest struct {
	CompanyNumber int64            `json:"companyNumber"`
	StartDate     string           `json:"startDate"`
	EndDate       string           `json:"endDate"`
	Nsu           int64            `json:"nsu"`
	Financeiro    []sankhya.Record `json:"financeiro"`
}

type paymentUpdateRequest struct {
	CompanyNumber int64  `json:"companyNumber"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
}

func InfoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "API is running",
			"health":  "API is healthy",
			"version": apiVersion,
		})
	}
}

// GenerateTokenHandler requests a fresh acquirer token for an explicit
// package/environment pair. The result is returned to the caller and not
// cached.
func GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validateEnvironmentPackage(req.Ambiente, req.Pacote); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, err := rede.GenerateToken(c.Request.Context(), req.Ambiente, req.Pacote, req.Auth)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, token)
	}
}

// ConsultInstallmentsHandler proxies the installment query to the acquirer
// using the bearer token forwarded by the caller.
func ConsultInstallmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req salesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		startDate, endDate, err := validateSalesRequest(req.Ambiente, req.CompanyNumber, req.StartDate, req.EndDate, req.Nsu)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sales := rede.NewSales().ForEnvironment(req.Ambiente)
		result, err := sales.ConsultInstallments(c.Request.Context(), token, req.CompanyNumber, startDate, endDate, req.Nsu)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if result.Message != "" {
			c.JSON(http.StatusOK, gin.H{"message": result.Message})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ConsultCreditOrdersHandler proxies the credit-order payment query to the
// acquirer using the bearer token forwarded by the caller.
func ConsultCreditOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req salesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		startDate, endDate, err := validateSalesRequest(req.Ambiente, req.CompanyNumber, req.StartDate, req.EndDate, 0)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sales := rede.NewSales().ForEnvironment(req.Ambiente)
		result, err := sales.ConsultCreditOrderPayments(c.Request.Context(), token, req.CompanyNumber, startDate, endDate)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if result.Message != "" {
			c.JSON(http.StatusOK, gin.H{"message": result.Message})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ConsultPaymentByIDHandler proxies a single payment lookup to the acquirer
// using the bearer token forwarded by the caller.
func ConsultPaymentByIDHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req paymentByIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validateEnvironment(req.Ambiente); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if strings.TrimSpace(req.PaymentID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "paymentId is required"})
			return
		}

		sales := rede.NewSales().ForEnvironment(req.Ambiente)
		result, err := sales.ConsultPaymentByID(c.Request.Context(), token, req.CompanyNumber, req.PaymentID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ConsultLinkDetailsHandler proxies a payment link lookup to the acquirer
// using the bearer token forwarded by the caller.
func ConsultLinkDetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req linkDetailsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validateEnvironment(req.Ambiente); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !companyAllowed(req.CompanyNumber) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid companyNumber"})
			return
		}
		if strings.TrimSpace(req.PaymentLinkID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "paymentLinkId is required"})
			return
		}

		details, err := rede.NewPaymentLink().ConsultLinkDetails(c.Request.Context(), req.Ambiente, token, req.PaymentLinkID, req.CompanyNumber)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, details)
	}
}

// CreateLinkHandler creates a payment link through the acquirer using the
// bearer token forwarded by the caller.
func CreateLinkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req linkCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validateEnvironment(req.Ambiente); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !companyAllowed(req.CompanyNumber) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid companyNumber"})
			return
		}
		if len(req.Body) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
			return
		}

		created, err := rede.NewPaymentLink().CreateLink(c.Request.Context(), req.Ambiente, token, req.CompanyNumber, req.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, created)
	}
}

// UpdateFinancialHandler runs the per-sale reconciliation flow with the
// financial entries supplied by the ERP-side automation.
func UpdateFinancialHandler(updater FinancialUpdater) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req financialUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		startDate, _, err := validateSalesRequest("", req.CompanyNumber, req.StartDate, req.EndDate, req.Nsu)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validateFinancialRecords(req.Financeiro); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		outcome := updater.UpdateFinancialData(c.Request.Context(), req.CompanyNumber, startDate, req.Nsu, req.Financeiro)
		if !outcome.Success {
			c.JSON(http.StatusInternalServerError, gin.H{"error": outcome.Message})
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// UpdatePaymentHandler runs the period reconciliation flow. A successful
// run that produced no work (no payments in the period) answers 204.
func UpdatePaymentHandler(updater PaymentUpdater) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		startDate, endDate, err := validateSalesRequest("", req.CompanyNumber, req.StartDate, req.EndDate, 0)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		outcome := updater.UpdatePaymentData(c.Request.Context(), req.CompanyNumber, startDate, endDate)
		if outcome.Success && outcome.Message != "" {
			c.Status(http.StatusNoContent)
			return
		}
		if !outcome.Success {
			c.JSON(http.StatusInternalServerError, gin.H{"error": outcome.Message})
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

// AllowedCompanies parses the COMPANY_NUMBER_LIST allow-list. It is read
// per call so the list can change without a restart.
func AllowedCompanies() []int64 {
	raw := strings.Split(os.Getenv("COMPANY_NUMBER_LIST"), ",")
	out := make([]int64, 0, len(raw))
	for _, item := range raw {
		n, err := strconv.ParseInt(strings.TrimSpace(item), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func companyAllowed(companyNumber int64) bool {
	for _, n := range AllowedCompanies() {
		if n == companyNumber {
			return true
		}
	}
	return false
}

func validateEnvironment(environment string) error {
	if environment != rede.EnvironmentStaging && environment != rede.EnvironmentProduction {
		return errors.New("invalid ambiente")
	}
	return nil
}

func validateEnvironmentPackage(environment string, pkg string) error {
	if err := validateEnvironment(environment); err != nil {
		return err
	}
	if pkg != rede.PackagePayment && pkg != rede.PackageSales {
		return errors.New("invalid pacote")
	}
	return nil
}

// validateSalesRequest checks the shared constraints of the sales-facing
// endpoints. An empty environment skips the environment check for the
// routine endpoints, which always run against the configured default.
func validateSalesRequest(environment string, companyNumber int64, startDate string, endDate string, nsu int64) (time.Time, time.Time, error) {
	var zero time.Time

	if environment != "" {
		if err := validateEnvironment(environment); err != nil {
			return zero, zero, err
		}
	}
	if !companyAllowed(companyNumber) {
		return zero, zero, errors.New("invalid companyNumber")
	}

	start, err := utils.ParseAPIDate(startDate)
	if err != nil {
		return zero, zero, errors.New("invalid startDate")
	}
	end, err := utils.ParseAPIDate(endDate)
	if err != nil {
		return zero, zero, errors.New("invalid endDate")
	}
	if start.After(end) {
		return zero, zero, errors.New("startDate cannot be after endDate")
	}

	if nsu != 0 && len(strconv.FormatInt(nsu, 10)) < 9 {
		return zero, zero, errors.New("invalid nsu")
	}

	return start, end, nil
}

// validateFinancialRecords checks the ERP-side payload carries the fields
// the positional pairing depends on.
func validateFinancialRecords(financial []sankhya.Record) error {
	if len(financial) == 0 {
		return errors.New("financeiro is required")
	}
	if _, ok := financial[0]["nufin"]; !ok {
		return errors.New("invalid financeiro records")
	}
	if _, ok := financial[0]["desdobramento"]; !ok {
		return errors.New("invalid financeiro records")
	}
	return nil
}
