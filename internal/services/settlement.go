package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"kasbook/internal/core"
)

var (
	ErrNoCashMovement = errors.New("settlement moves no cash")
	ErrMissingInvoice = errors.New("invoice number must not be empty")
)

const walkInCustomer = "Walk-in"

type (
	// Sale is a point-of-sale transaction. A sale paid in full is revenue;
	// anything less is recorded as a receivable for the paid part.
	Sale struct {
		Date        core.Date
		Invoice     string
		Customer    string
		Total       float64
		Paid        float64
		DownPayment bool
		Reference   string
		Note        string
	}

	// ReceivablePayment settles part or all of an open receivable.
	// Remaining is what is still owed after this payment.
	ReceivablePayment struct {
		Date      core.Date
		Invoice   string
		Customer  string
		Amount    float64
		Remaining float64
		Reference string
		Note      string
	}

	// Purchase is a supply purchase paid in cash.
	Purchase struct {
		Date          core.Date
		OrderNumber   string
		VendorInvoice string
		Vendor        string
		Total         float64
		Note          string
	}

	// DebtPayment pays down a supplier debt.
	DebtPayment struct {
		Date      core.Date
		Invoice   string
		Vendor    string
		Amount    float64
		Reference string
		Note      string
	}
)

var rupiah = message.NewPrinter(language.Indonesian)

// formatRupiah renders whole rupiah with Indonesian digit grouping.
func formatRupiah(v float64) string {
	return rupiah.Sprintf("Rp %d", int64(math.Round(v)))
}

// RecordSale books the cash side of a sale.
func (s *CashbookService) RecordSale(ctx context.Context, sale Sale) (core.Entry, error) {
	if strings.TrimSpace(sale.Invoice) == "" {
		return core.Entry{}, fmt.Errorf("record sale: %w", ErrMissingInvoice)
	}
	if sale.Paid <= 0 {
		return core.Entry{}, fmt.Errorf("record sale %s: %w", sale.Invoice, ErrNoCashMovement)
	}

	customer := orWalkIn(sale.Customer)
	ne := NewEntry{Date: sale.Date, Note: sale.Note}
	if sale.Paid >= sale.Total {
		ne.Category = core.CategorySales
		ne.Debit = sale.Total
		ne.Memo = fmt.Sprintf("Penjualan %s - %s", sale.Invoice, customer)
	} else {
		prefix := "Pembayaran Sebagian"
		if sale.DownPayment {
			prefix = "DP"
		}
		ne.Category = core.CategoryReceivable
		ne.Debit = sale.Paid
		ne.Memo = fmt.Sprintf("%s %s - %s (%s dari %s)", prefix, sale.Invoice, customer,
			formatRupiah(sale.Paid), formatRupiah(sale.Total))
	}
	ne.Memo = withReference(ne.Memo, sale.Reference)
	return s.AddEntry(ctx, ne)
}

// RecordReceivablePayment books money received against a receivable as
// PIUTANG, so every installment counts as revenue. The memo marks the
// final one LUNAS.
func (s *CashbookService) RecordReceivablePayment(ctx context.Context, p ReceivablePayment) (core.Entry, error) {
	if strings.TrimSpace(p.Invoice) == "" {
		return core.Entry{}, fmt.Errorf("record receivable payment: %w", ErrMissingInvoice)
	}
	if p.Amount <= 0 {
		return core.Entry{}, fmt.Errorf("record receivable payment %s: %w", p.Invoice, ErrNoCashMovement)
	}

	ne := NewEntry{Date: p.Date, Category: core.CategoryReceivable, Debit: p.Amount, Note: p.Note}
	memo := fmt.Sprintf("Bayar Piutang %s - %s", p.Invoice, orWalkIn(p.Customer))
	if p.Remaining <= 0 {
		memo += " (LUNAS)"
	} else {
		memo += fmt.Sprintf(" (Sisa: %s)", formatRupiah(p.Remaining))
	}
	ne.Memo = withReference(memo, p.Reference)
	return s.AddEntry(ctx, ne)
}

// RecordPurchase books a cash supply purchase as a SUPPLY credit.
func (s *CashbookService) RecordPurchase(ctx context.Context, p Purchase) (core.Entry, error) {
	if p.Total <= 0 {
		return core.Entry{}, fmt.Errorf("record purchase %s: %w", p.OrderNumber, ErrNoCashMovement)
	}

	memo := fmt.Sprintf("Pembelian %s (%s)", p.OrderNumber, p.VendorInvoice)
	if strings.TrimSpace(p.Vendor) == "" {
		memo += " - Tanpa Vendor"
	} else {
		memo += " - " + strings.TrimSpace(p.Vendor)
	}
	return s.AddEntry(ctx, NewEntry{
		Date:     p.Date,
		Category: core.CategorySupply,
		Credit:   p.Total,
		Memo:     memo,
		Note:     p.Note,
	})
}

// RecordDebtPayment books a payment of goods debt. It is a SUPPLY credit
// like a cash purchase.
func (s *CashbookService) RecordDebtPayment(ctx context.Context, p DebtPayment) (core.Entry, error) {
	if strings.TrimSpace(p.Invoice) == "" {
		return core.Entry{}, fmt.Errorf("record debt payment: %w", ErrMissingInvoice)
	}
	if p.Amount <= 0 {
		return core.Entry{}, fmt.Errorf("record debt payment %s: %w", p.Invoice, ErrNoCashMovement)
	}

	memo := "Pembayaran Hutang " + p.Invoice
	if v := strings.TrimSpace(p.Vendor); v != "" {
		memo += " - " + v
	}
	if p.Reference != "" {
		memo += fmt.Sprintf(" (Ref: %s)", p.Reference)
	}
	return s.AddEntry(ctx, NewEntry{
		Date:     p.Date,
		Category: core.CategorySupply,
		Credit:   p.Amount,
		Memo:     memo,
		Note:     p.Note,
	})
}

func orWalkIn(customer string) string {
	if c := strings.TrimSpace(customer); c != "" {
		return c
	}
	return walkInCustomer
}

func withReference(memo, ref string) string {
	if ref == "" {
		return memo
	}
	return fmt.Sprintf("%s [REF:%s]", memo, ref)
}
