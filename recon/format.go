package recon

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mmdatafocus/recon_backend/rede"
	"github.com/mmdatafocus/recon_backend/sankhya"
	"github.com/mmdatafocus/recon_backend/utils"
)

// FormatSalePayload pairs settlement installments with financial entries by
// position and builds the update units for the sale fields (indices 0-5 of
// the DatasetSP.save field list). The two lists must describe the same sale
// split, so a length mismatch is a formatting error rather than a partial
// update.
func FormatSalePayload(installments []rede.Installment, financial []sankhya.Record) ([]sankhya.UpdateUnit, error) {
	if len(installments) == 0 {
		return nil, fmt.Errorf("no installments to pair")
	}
	if len(installments) != len(financial) {
		return nil, fmt.Errorf("installment count %d does not match financial entry count %d", len(installments), len(financial))
	}

	units := make([]sankhya.UpdateUnit, 0, len(installments))
	for i, item := range installments {
		nufin, ok := financial[i]["nufin"]
		if !ok {
			return nil, fmt.Errorf("financial entry %d has no nufin", i)
		}

		expiration, err := utils.ReformatDateBR(item.ExpirationDate)
		if err != nil {
			return nil, fmt.Errorf("installment %d has invalid expirationDate %q: %w", i, item.ExpirationDate, err)
		}

		units = append(units, sankhya.UpdateUnit{
			PK: map[string]any{"NUFIN": nufin},
			Values: map[string]any{
				"0": item.AmountInfo.Amount,
				"1": expiration,
				"2": item.InstallmentNumber,
				"3": item.MdrAmount,
				"4": item.MdrFee,
				"5": item.AmountInfo.NetAmount,
			},
		})
	}
	return units, nil
}

// FormatPaymentPayload joins credit-order payments with financial entries
// on the settlement summary number and builds the update units for the
// payment fields (indices 6-9 of the DatasetSP.save field list). A payment
// may settle several financial entries, so every matching entry gets a
// unit.
func FormatPaymentPayload(payments []rede.PaymentOrder, financial []sankhya.Record) ([]sankhya.UpdateUnit, error) {
	units := []sankhya.UpdateUnit{}
	for _, payment := range payments {
		paymentDate, err := utils.ReformatDateBR(payment.PaymentDate)
		if err != nil {
			return nil, fmt.Errorf("payment %s has invalid paymentDate %q: %w", payment.PaymentID, payment.PaymentDate, err)
		}

		key := strconv.FormatInt(payment.SaleSummaryNumber, 10)
		for _, entry := range financial {
			if keyString(entry["ad_rede_salesumnum"]) != key {
				continue
			}
			nufin, ok := entry["nufin"]
			if !ok {
				continue
			}
			units = append(units, sankhya.UpdateUnit{
				PK: map[string]any{"NUFIN": nufin},
				Values: map[string]any{
					"6": paymentDate,
					"7": payment.PaymentID,
					"8": "S",
					"9": payment.TID,
				},
			})
		}
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no financial entries matched the settlement payments")
	}
	return units, nil
}

// keyString normalizes a join-key value regardless of how the gateway
// serialized it. Integral floats lose their fraction so that 12345 and
// 12345.0 compare equal; strings are trimmed.
func keyString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
