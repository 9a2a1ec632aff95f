package rede

import "github.com/shopspring/decimal"

const (
	// EnvironmentStaging selects the acquirer's homologation environment.
	EnvironmentStaging = "trn"
	// EnvironmentProduction selects the acquirer's production environment.
	EnvironmentProduction = "prd"

	// PackagePayment is the payment-link API contract.
	PackagePayment = "pgto"
	// PackageSales is the settlement/sales API contract.
	PackageSales = "vendas"
)

// TokenResponse is the OAuth token envelope returned by the acquirer,
// annotated with the local issue and expiry timestamps.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RequestTime  string `json:"request_time,omitempty"`
	ExpireTime   string `json:"expire_time,omitempty"`
}

// AmountInfo groups the gross and net amounts of an installment.
type AmountInfo struct {
	Amount    decimal.Decimal `json:"amount"`
	NetAmount decimal.Decimal `json:"netAmount"`
}

// Installment is one settlement installment of a card sale.
type Installment struct {
	InstallmentNumber int             `json:"installmentNumber"`
	ExpirationDate    string          `json:"expirationDate"`
	MdrAmount         decimal.Decimal `json:"mdrAmount"`
	MdrFee            decimal.Decimal `json:"mdrFee"`
	AmountInfo        AmountInfo      `json:"amountInfo"`
}

// InstallmentsResult carries the installments of a sale, or a Message when
// the acquirer had no data for the requested NSU and date.
type InstallmentsResult struct {
	Content struct {
		Installments []Installment `json:"installments"`
	} `json:"content"`
	Message string `json:"-"`
}

// PaymentOrder is one credit-order payment event in a settlement period.
type PaymentOrder struct {
	SaleSummaryNumber int64           `json:"saleSummaryNumber"`
	PaymentID         string          `json:"paymentId"`
	TID               string          `json:"tid"`
	PaymentDate       string          `json:"paymentDate"`
	Amount            decimal.Decimal `json:"amount"`
	NetAmount         decimal.Decimal `json:"netAmount"`
}

// CreditOrdersResult carries the credit-order payments of a period, or a
// Message when the acquirer returned an empty body for the period.
type CreditOrdersResult struct {
	Content struct {
		PaymentsCreditOrders []PaymentOrder `json:"paymentsCreditOrders"`
	} `json:"content"`
	Message string `json:"-"`
}

// PaymentDetail is the payload of a single payment lookup by id.
type PaymentDetail struct {
	Content map[string]any `json:"content"`
}
