package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kasbook/internal/core"
	"kasbook/internal/services"
)

// entryFlags holds the raw-field flags shared by add and update.
type entryFlags struct {
	date     string
	seq      int64
	category string
	debit    float64
	credit   float64
	memo     string
	note     string
}

func (f *entryFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.date, "date", "", "entry date (YYYY-MM-DD)")
	fs.Int64Var(&f.seq, "seq", 0, "sequence key")
	fs.StringVar(&f.category, "category", "", "category code, e.g. OMZET or PIUTANG")
	fs.Float64Var(&f.debit, "debit", 0, "cash in")
	fs.Float64Var(&f.credit, "credit", 0, "cash out")
	fs.StringVar(&f.memo, "memo", "", "purpose text read by the ledger rules")
	fs.StringVar(&f.note, "note", "", "free note")
}

func (s *session) addCmd() *cobra.Command {
	var f entryFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an entry and recompute the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date := today()
			if f.date != "" {
				d, err := core.ParseDate(f.date)
				if err != nil {
					return err
				}
				date = d
			}
			cat, err := core.ParseCategory(f.category)
			if err != nil {
				return err
			}
			e, err := s.app.Book.AddEntry(cmd.Context(), services.NewEntry{
				Date:        date,
				SequenceKey: f.seq,
				Category:    cat,
				Debit:       f.debit,
				Credit:      f.credit,
				Memo:        f.memo,
				Note:        f.note,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s at sequence %d, balance %s\n", e.ID, e.SequenceKey, amount(e.Derived[core.FieldBalance]))
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func (s *session) updateCmd() *cobra.Command {
	var f entryFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the raw fields of an active entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ch services.EntryChanges
			fs := cmd.Flags()
			if fs.Changed("date") {
				d, err := core.ParseDate(f.date)
				if err != nil {
					return err
				}
				ch.Date = &d
			}
			if fs.Changed("category") {
				c, err := core.ParseCategory(f.category)
				if err != nil {
					return err
				}
				ch.Category = &c
			}
			if fs.Changed("seq") {
				ch.SequenceKey = &f.seq
			}
			if fs.Changed("debit") {
				ch.Debit = &f.debit
			}
			if fs.Changed("credit") {
				ch.Credit = &f.credit
			}
			if fs.Changed("memo") {
				ch.Memo = &f.memo
			}
			if fs.Changed("note") {
				ch.Note = &f.note
			}

			e, err := s.app.Book.UpdateEntry(cmd.Context(), args[0], ch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s, balance %s\n", e.ID, amount(e.Derived[core.FieldBalance]))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (s *session) deleteCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an active entry, or every active entry with --all-active",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if all {
				n, err := s.app.Book.DeleteAllActive(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted %d active entries\n", n)
				return nil
			}
			if err := s.app.Book.DeleteEntry(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all-active", false, "delete every active entry; archives are kept")
	return cmd
}

// importRecord is one element of an import file.
type importRecord struct {
	Date        string        `json:"date"`
	SequenceKey int64         `json:"sequence_key"`
	Category    core.Category `json:"category"`
	Debit       float64       `json:"debit"`
	Credit      float64       `json:"credit"`
	Memo        string        `json:"memo"`
	Note        string        `json:"note"`
}

func (s *session) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a JSON array of entries; all of them or none are added",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readImport(args[0])
			if err != nil {
				return err
			}
			n, err := s.app.Book.ImportEntries(cmd.Context(), batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", n)
			return nil
		},
	}
}

func readImport(path string) ([]services.NewEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	var records []importRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode import file: %w", err)
	}

	batch := make([]services.NewEntry, 0, len(records))
	for i, r := range records {
		d, err := core.ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		batch = append(batch, services.NewEntry{
			Date:        d,
			SequenceKey: r.SequenceKey,
			Category:    r.Category,
			Debit:       r.Debit,
			Credit:      r.Credit,
			Memo:        r.Memo,
			Note:        r.Note,
		})
	}
	return batch, nil
}

func (s *session) overrideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Pin or release a derived value",
	}

	set := &cobra.Command{
		Use:   "set <id> <field> <value>",
		Short: "Pin a derived field of an entry to a value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := core.ParseField(args[1])
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[2], err)
			}
			e, err := s.app.Book.SetOverride(cmd.Context(), args[0], field, value)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pinned %s of %s to %s\n", field, e.ID, amount(e.Derived[field]))
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear <id> <field>",
		Short: "Release a pinned field so it is computed again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := core.ParseField(args[1])
			if err != nil {
				return err
			}
			e, err := s.app.Book.ClearOverride(cmd.Context(), args[0], field)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %s of %s, now %s\n", field, e.ID, amount(e.Derived[field]))
			return nil
		},
	}

	cmd.AddCommand(set, clear)
	return cmd
}

func (s *session) reorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id>=<seq>...",
		Short: "Assign new sequence keys to active entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseAssignments(args)
			if err != nil {
				return err
			}
			if err := s.app.Book.Reorder(cmd.Context(), assignments); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reordered %d entries\n", len(assignments))
			return nil
		},
	}
}

func parseAssignments(args []string) ([]services.SequenceAssignment, error) {
	out := make([]services.SequenceAssignment, 0, len(args))
	for _, arg := range args {
		id, raw, ok := strings.Cut(arg, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid assignment %q, want <id>=<seq>", arg)
		}
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sequence in %q: %w", arg, err)
		}
		out = append(out, services.SequenceAssignment{ID: id, SequenceKey: seq})
	}
	return out, nil
}

func (s *session) archiveCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "archive <label>",
		Short: "Close the active entries dated within a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := core.ParseDate(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := core.ParseDate(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			n, err := s.app.Book.Archive(cmd.Context(), args[0], start, end)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %d entries as %q\n", n, strings.TrimSpace(args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date of the period (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (s *session) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <label>",
		Short: "Return an archive period to the active ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := s.app.Book.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.New("no entries carry that archive label")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d entries\n", n)
			return nil
		},
	}
}

func today() core.Date {
	y, m, d := time.Now().Date()
	return core.NewDate(y, int(m), d)
}
