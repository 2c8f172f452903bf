package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kasbook/internal/core"
	"kasbook/internal/services"
)

// settlementFlags covers the union of fields the record subcommands take.
type settlementFlags struct {
	date      string
	invoice   string
	party     string
	reference string
	note      string
	total     float64
	paid      float64
	amount    float64
	remaining float64
	order     string
	dp        bool
}

func (f *settlementFlags) parseDate() (core.Date, error) {
	if f.date == "" {
		return today(), nil
	}
	return core.ParseDate(f.date)
}

func (s *session) recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Post a sale, purchase or payment as a cash-book entry",
	}
	cmd.AddCommand(s.recordSaleCmd(), s.recordReceivableCmd(), s.recordPurchaseCmd(), s.recordDebtCmd())
	return cmd
}

func (s *session) recordSaleCmd() *cobra.Command {
	var f settlementFlags
	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Record a sale; a partial payment opens a receivable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := f.parseDate()
			if err != nil {
				return err
			}
			e, err := s.app.Book.RecordSale(cmd.Context(), services.Sale{
				Date:        date,
				Invoice:     f.invoice,
				Customer:    f.party,
				Total:       f.total,
				Paid:        f.paid,
				DownPayment: f.dp,
				Reference:   f.reference,
				Note:        f.note,
			})
			if err != nil {
				return err
			}
			return printRecorded(cmd, e)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.date, "date", "", "sale date (YYYY-MM-DD), today when empty")
	fs.StringVar(&f.invoice, "invoice", "", "invoice number")
	fs.StringVar(&f.party, "customer", "", "customer name")
	fs.Float64Var(&f.total, "total", 0, "invoice total")
	fs.Float64Var(&f.paid, "paid", 0, "amount paid now")
	fs.BoolVar(&f.dp, "dp", false, "the payment is a down payment")
	fs.StringVar(&f.reference, "ref", "", "payment reference")
	fs.StringVar(&f.note, "note", "", "free note")
	_ = cmd.MarkFlagRequired("invoice")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func (s *session) recordReceivableCmd() *cobra.Command {
	var f settlementFlags
	cmd := &cobra.Command{
		Use:   "receivable",
		Short: "Record a payment against an open receivable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := f.parseDate()
			if err != nil {
				return err
			}
			e, err := s.app.Book.RecordReceivablePayment(cmd.Context(), services.ReceivablePayment{
				Date:      date,
				Invoice:   f.invoice,
				Customer:  f.party,
				Amount:    f.amount,
				Remaining: f.remaining,
				Reference: f.reference,
				Note:      f.note,
			})
			if err != nil {
				return err
			}
			return printRecorded(cmd, e)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.date, "date", "", "payment date (YYYY-MM-DD), today when empty")
	fs.StringVar(&f.invoice, "invoice", "", "invoice number")
	fs.StringVar(&f.party, "customer", "", "customer name")
	fs.Float64Var(&f.amount, "amount", 0, "amount received")
	fs.Float64Var(&f.remaining, "remaining", 0, "amount still owed after this payment")
	fs.StringVar(&f.reference, "ref", "", "payment reference")
	fs.StringVar(&f.note, "note", "", "free note")
	_ = cmd.MarkFlagRequired("invoice")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *session) recordPurchaseCmd() *cobra.Command {
	var f settlementFlags
	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Record a supply purchase paid in cash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := f.parseDate()
			if err != nil {
				return err
			}
			e, err := s.app.Book.RecordPurchase(cmd.Context(), services.Purchase{
				Date:          date,
				OrderNumber:   f.order,
				VendorInvoice: f.invoice,
				Vendor:        f.party,
				Total:         f.total,
				Note:          f.note,
			})
			if err != nil {
				return err
			}
			return printRecorded(cmd, e)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.date, "date", "", "purchase date (YYYY-MM-DD), today when empty")
	fs.StringVar(&f.order, "po", "", "purchase order number")
	fs.StringVar(&f.invoice, "vendor-invoice", "", "vendor invoice number")
	fs.StringVar(&f.party, "vendor", "", "vendor name")
	fs.Float64Var(&f.total, "total", 0, "amount paid")
	fs.StringVar(&f.note, "note", "", "free note")
	_ = cmd.MarkFlagRequired("po")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func (s *session) recordDebtCmd() *cobra.Command {
	var f settlementFlags
	cmd := &cobra.Command{
		Use:   "debt",
		Short: "Record a payment of a supplier debt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := f.parseDate()
			if err != nil {
				return err
			}
			e, err := s.app.Book.RecordDebtPayment(cmd.Context(), services.DebtPayment{
				Date:      date,
				Invoice:   f.invoice,
				Vendor:    f.party,
				Amount:    f.amount,
				Reference: f.reference,
				Note:      f.note,
			})
			if err != nil {
				return err
			}
			return printRecorded(cmd, e)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.date, "date", "", "payment date (YYYY-MM-DD), today when empty")
	fs.StringVar(&f.invoice, "invoice", "", "vendor invoice number")
	fs.StringVar(&f.party, "vendor", "", "vendor name")
	fs.Float64Var(&f.amount, "amount", 0, "amount paid")
	fs.StringVar(&f.reference, "ref", "", "payment reference")
	fs.StringVar(&f.note, "note", "", "free note")
	_ = cmd.MarkFlagRequired("invoice")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func printRecorded(cmd *cobra.Command, e core.Entry) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "recorded %s %s %q, balance %s\n",
		e.ID, e.Category.Code(), e.Memo, amount(e.Derived[core.FieldBalance]))
	return err
}

func (s *session) requestCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "request-recalc",
		Short: "Ask the worker to recompute the ledger over AMQP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := s.app.Backend.AMQP
			if client == nil {
				return errors.New("request-recalc needs EVENTS_BACKEND=amqp and a reachable broker")
			}
			if err := client.RequestRecalculate(cmd.Context(), reason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "recalculation requested")
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "operator", "reason recorded on the request")
	return cmd
}
