package recon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mmdatafocus/recon_backend/middlewares"
	"github.com/mmdatafocus/recon_backend/sankhya"
)

type fakeUpdater struct {
	outcome Outcome

	financialCalls int
	paymentCalls   int
	lastNsu        int64
	lastStart      time.Time
	lastEnd        time.Time
}

func (f *fakeUpdater) UpdateFinancialData(ctx context.Context, companyNumber int64, saleDate time.Time, nsu int64, financial []sankhya.Record) Outcome {
	f.financialCalls++
	f.lastNsu = nsu
	f.lastStart = saleDate
	return f.outcome
}

func (f *fakeUpdater) UpdatePaymentData(ctx context.Context, companyNumber int64, startDate time.Time, endDate time.Time) Outcome {
	f.paymentCalls++
	f.lastStart = startDate
	f.lastEnd = endDate
	return f.outcome
}

func postJSON(t *testing.T, r *gin.Engine, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUpdateFinancialHandlerValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("COMPANY_NUMBER_LIST", "123,456")

	updater := &fakeUpdater{outcome: Outcome{Success: true}}
	r := gin.New()
	r.POST("/rotina/atualiza-financeiro", UpdateFinancialHandler(updater))

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid request",
			body:       `{"companyNumber": 123, "startDate": "2024-05-31", "endDate": "2024-05-31", "nsu": 123456789, "financeiro": [{"nufin": 55, "desdobramento": "1"}]}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "company not in allow list",
			body:       `{"companyNumber": 999, "startDate": "2024-05-31", "endDate": "2024-05-31", "nsu": 123456789, "financeiro": [{"nufin": 55, "desdobramento": "1"}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "start after end",
			body:       `{"companyNumber": 123, "startDate": "2024-06-02", "endDate": "2024-05-31", "nsu": 123456789, "financeiro": [{"nufin": 55, "desdobramento": "1"}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "nsu too short",
			body:       `{"companyNumber": 123, "startDate": "2024-05-31", "endDate": "2024-05-31", "nsu": 12345, "financeiro": [{"nufin": 55, "desdobramento": "1"}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "financeiro missing desdobramento",
			body:       `{"companyNumber": 123, "startDate": "2024-05-31", "endDate": "2024-05-31", "nsu": 123456789, "financeiro": [{"nufin": 55}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "financeiro empty",
			body:       `{"companyNumber": 123, "startDate": "2024-05-31", "endDate": "2024-05-31", "nsu": 123456789, "financeiro": []}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, r, "/rotina/atualiza-financeiro", tc.body, nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestUpdateFinancialHandlerFailureAnswers500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("COMPANY_NUMBER_LIST", "123")

	updater := &fakeUpdater{outcome: Outcome{Success: false, Message: "failed to update financial entries: boom"}}
	r := gin.New()
	r.POST("/rotina/atualiza-financeiro", UpdateFinancialHandler(updater))

	w := postJSON(t, r, "/rotina/atualiza-financeiro",
		`{"companyNumber": 123, "startDate": "2024-05-31", "endDate": "2024-05-31", "nsu": 123456789, "financeiro": [{"nufin": 55, "desdobramento": "1"}]}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "boom") {
		t.Fatalf("expected failure message in body; got %s", w.Body.String())
	}
}

func TestUpdatePaymentHandlerEmptyPeriodAnswers204(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("COMPANY_NUMBER_LIST", "123")

	updater := &fakeUpdater{outcome: Outcome{Success: true, Message: "no payments found for the period (31/05/2024-31/05/2024)"}}
	r := gin.New()
	r.POST("/rotina/atualiza-pagamento", UpdatePaymentHandler(updater))

	w := postJSON(t, r, "/rotina/atualiza-pagamento",
		`{"companyNumber": 123, "startDate": "2024-05-31", "endDate": "2024-05-31"}`, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204 (body %s)", w.Code, w.Body.String())
	}
	if updater.paymentCalls != 1 {
		t.Fatalf("expected one engine call; got %d", updater.paymentCalls)
	}
}

func TestUpdatePaymentHandlerSuccessAnswers200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("COMPANY_NUMBER_LIST", "123")

	updater := &fakeUpdater{outcome: Outcome{Success: true}}
	r := gin.New()
	r.POST("/rotina/atualiza-pagamento", UpdatePaymentHandler(updater))

	w := postJSON(t, r, "/rotina/atualiza-pagamento",
		`{"companyNumber": 123, "startDate": "2024-05-31", "endDate": "2024-05-31"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"sucesso":true`) {
		t.Fatalf("expected outcome body; got %s", w.Body.String())
	}
}

func TestUpdatePaymentHandlerFailureAnswers500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("COMPANY_NUMBER_LIST", "123")

	updater := &fakeUpdater{outcome: Outcome{Success: false, Message: "failed to update payment entries: boom"}}
	r := gin.New()
	r.POST("/rotina/atualiza-pagamento", UpdatePaymentHandler(updater))

	w := postJSON(t, r, "/rotina/atualiza-pagamento",
		`{"companyNumber": 123, "startDate": "2024-05-31", "endDate": "2024-05-31"}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", w.Code)
	}
}

func TestConsultEndpointsRequireBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("COMPANY_NUMBER_LIST", "123")

	r := gin.New()
	vendas := r.Group("/vendas", middlewares.BearerTokenMiddleware())
	vendas.POST("/consulta-parcelas", ConsultInstallmentsHandler())

	body := `{"ambiente": "prd", "companyNumber": 123, "startDate": "2024-05-31", "endDate": "2024-05-31"}`

	w := postJSON(t, r, "/vendas/consulta-parcelas", body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without token %d, want 401", w.Code)
	}

	w = postJSON(t, r, "/vendas/consulta-parcelas", body, map[string]string{"Authorization": "Basic abc"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status with non-bearer auth %d, want 401", w.Code)
	}
}

func TestAllowedCompaniesParsing(t *testing.T) {
	t.Setenv("COMPANY_NUMBER_LIST", " 123 , 456 , junk , ")
	got := AllowedCompanies()
	if len(got) != 2 || got[0] != 123 || got[1] != 456 {
		t.Fatalf("unexpected allow list %v", got)
	}
}
