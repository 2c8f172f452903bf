package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kasbook/internal/core"
	"kasbook/internal/ledger"
)

func (s *session) recalcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Recompute every derived column of the active ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := s.app.Book.RecalculateAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recalculated %d entries\n", res.Entries)
			return writeSummary(cmd.OutOrStdout(), res.Summary)
		},
	}
}

func (s *session) verifyCmd() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay the ledger and report stored values that drifted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drifts, err := s.app.Book.Verify(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(drifts) == 0 {
				fmt.Fprintln(out, "ledger consistent")
				return nil
			}
			if err := writeDrifts(out, drifts); err != nil {
				return err
			}
			if !repair {
				return fmt.Errorf("%d derived values drifted", len(drifts))
			}
			res, err := s.app.Book.RecalculateAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("repair: %w", err)
			}
			fmt.Fprintf(out, "repaired by recomputing %d entries\n", res.Entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "recompute the ledger when drift is found")
	return cmd
}

func (s *session) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show the derived values of the last active entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := s.app.Book.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), sum)
		},
	}
}

func (s *session) listCmd() *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the active ledger in processing order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := s.app.Book.Entries(cmd.Context())
			if err != nil {
				return err
			}
			if last > 0 && len(entries) > last {
				entries = entries[len(entries)-last:]
			}
			return writeEntries(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 0, "show only the last n entries")
	return cmd
}

func (s *session) archivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List archive periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			periods, err := s.app.Book.ListArchives(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tENTRIES\tFROM\tTO\tARCHIVED AT")
			for _, p := range periods {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", p.Label, p.Count, p.FirstDate, p.LastDate, p.ArchivedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func (s *session) archivedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archived <label>",
		Short: "List the frozen entries of an archive period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := s.app.Book.ArchivedEntries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), entries)
		},
	}
}

func writeEntries(out io.Writer, entries []core.Entry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SEQ\tDATE\tCATEGORY\tDEBIT\tCREDIT\tBALANCE\tNET PROFIT\tGEMI\tPINNED\tID\tMEMO\t")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			e.SequenceKey,
			e.Date,
			e.Category.Code(),
			amount(e.Debit),
			amount(e.Credit),
			amount(e.Derived[core.FieldBalance]),
			amount(e.Derived[core.FieldNetProfit]),
			amount(e.Derived[core.FieldShareGemi]),
			pinned(e.Overrides),
			e.ID,
			e.Memo,
		)
	}
	return w.Flush()
}

func writeSummary(out io.Writer, sum core.Summary) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "entries\t%d\n", sum.Entries)
	if sum.Entries > 0 {
		fmt.Fprintf(w, "last entry\t%s\n", sum.LastEntry)
	}
	for _, f := range core.Fields() {
		fmt.Fprintf(w, "%s\t%s\n", f, amount(sum.Values[f]))
	}
	return w.Flush()
}

func writeDrifts(out io.Writer, drifts []ledger.Drift) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tENTRY\tFIELD\tSTORED\tCOMPUTED")
	for _, d := range drifts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", d.SequenceKey, d.EntryID, d.Field, amount(d.Stored), amount(d.Computed))
	}
	return w.Flush()
}

func amount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func pinned(o core.Overrides) string {
	if len(o) == 0 {
		return "-"
	}
	names := make([]string, 0, len(o))
	for f := range o {
		names = append(names, f.String())
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}
