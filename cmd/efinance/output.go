package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"efinance/internal/amqp"
	"efinance/internal/core"
	"efinance/internal/services"
)

type output struct {
	w    io.Writer
	json bool
}

func outputFor(c *cli.Context) output {
	return output{w: c.App.Writer, json: c.Bool("json")}
}

// render prints v as indented JSON with --json, otherwise through table.
func (o output) render(v any, table func(tw *tabwriter.Writer)) error {
	if o.json {
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func (o output) message(msg core.Message, fallback string) error {
	return o.render(msg, func(tw *tabwriter.Writer) {
		text := msg.Message
		if text == "" {
			text = fallback
		}
		fmt.Fprintln(tw, text)
	})
}

func (o output) auth(result services.AuthResult, fallback string) error {
	return o.render(result, func(tw *tabwriter.Writer) {
		text := result.Message
		if text == "" {
			text = fallback
		}
		if result.User != nil {
			text += " as " + result.User.Email
		}
		fmt.Fprintln(tw, text)
	})
}

func (o output) event(msg *amqp.SessionEventMessage) error {
	return o.render(msg, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", msg.Timestamp.Local().Format(time.RFC3339), msg.Kind, msg.Subject)
	})
}

func (o output) user(u core.User) error {
	return o.render(u, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID\t%d\n", u.ID)
		fmt.Fprintf(tw, "Name\t%s\n", u.FullName())
		fmt.Fprintf(tw, "Email\t%s\n", u.Email)
		fmt.Fprintf(tw, "Balance\t%s\n", core.FormatXOF(u.Solde))
		if u.DateJoined != nil {
			fmt.Fprintf(tw, "Joined\t%s\n", u.DateJoined.Format(time.DateOnly))
		}
	})
}

func (o output) categories(p core.Page[core.Category]) error {
	return o.render(p, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTRANSACTIONS\tTOTAL")
		for _, c := range p.Results {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", c.ID, c.Name, c.Type, c.TransactionCount, core.FormatXOF(c.TotalAmount))
		}
		pageFooter(tw, p.CurrentPage, p.TotalPages, p.Count)
	})
}

func (o output) category(c core.Category) error {
	return o.render(c, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID\t%d\n", c.ID)
		fmt.Fprintf(tw, "Name\t%s\n", c.Name)
		fmt.Fprintf(tw, "Type\t%s\n", c.Type)
		if c.GroupName != "" {
			fmt.Fprintf(tw, "Group\t%s\n", c.GroupName)
		}
	})
}

func (o output) categoryStats(rows []core.CategoryStats) error {
	return o.render(rows, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTRANSACTIONS\tTOTAL\tSHARE")
		for _, r := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%.1f%%\n",
				r.ID, r.Name, r.Type, r.TransactionCount, core.FormatXOF(r.TotalAmount), r.PercentageOfTotal)
		}
	})
}

func (o output) categoryTransactions(ct core.CategoryTransactions) error {
	return o.render(ct, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "%s (%s)\t%d transaction(s)\t%s\n",
			ct.Category.Name, ct.Category.Type, ct.TransactionCount, core.FormatXOF(ct.TotalAmount))
		transactionRows(tw, ct.Transactions)
	})
}

func (o output) transactions(p core.Page[core.Transaction]) error {
	return o.render(p, func(tw *tabwriter.Writer) {
		transactionRows(tw, p.Results)
		pageFooter(tw, p.CurrentPage, p.TotalPages, p.Count)
	})
}

func (o output) transaction(tx core.Transaction) error {
	return o.render(tx, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID\t%d\n", tx.ID)
		fmt.Fprintf(tw, "Date\t%s\n", tx.Date)
		fmt.Fprintf(tw, "Type\t%s\n", tx.Type)
		fmt.Fprintf(tw, "Amount\t%s\n", core.FormatXOF(tx.Amount))
		fmt.Fprintf(tw, "Category\t%s\n", tx.CategoryName)
		fmt.Fprintf(tw, "Description\t%s\n", tx.Description)
		if tx.Proof != "" {
			fmt.Fprintf(tw, "Proof\t%s\n", tx.Proof)
		}
	})
}

func (o output) transactionStats(st core.TransactionStats) error {
	return o.render(st, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Income\t%s\t(%d)\n", core.FormatXOF(st.TotalIncome), st.IncomeCount)
		fmt.Fprintf(tw, "Expenses\t%s\t(%d)\n", core.FormatXOF(st.TotalExpenses), st.ExpenseCount)
		fmt.Fprintf(tw, "Balance\t%s\n", core.FormatXOF(st.Balance))
		fmt.Fprintf(tw, "Average\t%s\n", core.FormatXOF(st.AverageTransaction))
	})
}

func (o output) byCategory(rows []core.CategoryBreakdown) error {
	return o.render(rows, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "CATEGORY\tTYPE\tTRANSACTIONS\tTOTAL\tSHARE")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.1f%%\n",
				r.CategoryName, r.CategoryType, r.TransactionCount, core.FormatXOF(r.TotalAmount), r.Percentage)
		}
	})
}

func (o output) overview(ov core.Overview) error {
	return o.render(ov, func(tw *tabwriter.Writer) {
		d := ov.Dashboard
		fmt.Fprintf(tw, "%s\t%s\n", d.User.FullName(), d.User.Email)
		fmt.Fprintf(tw, "Balance\t%s\n", core.FormatXOF(d.Statistics.TotalBalance))
		fmt.Fprintf(tw, "Transactions\t%d\n", d.Statistics.TotalTransactions)
		fmt.Fprintf(tw, "Groups\t%d\n", d.Statistics.TotalGroups)
		fmt.Fprintf(tw, "Income\t%s\n", core.FormatXOF(ov.TransactionStats.TotalIncome))
		fmt.Fprintf(tw, "Expenses\t%s\n", core.FormatXOF(ov.TransactionStats.TotalExpenses))

		if len(d.RecentTransactions) > 0 {
			fmt.Fprintln(tw, "\nRECENT\t\t\t")
			for _, tx := range d.RecentTransactions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tx.Date, tx.Type, core.FormatXOF(tx.Amount), tx.Description)
			}
		}
		if len(ov.ByCategory) > 0 {
			fmt.Fprintln(tw, "\nBY CATEGORY\t\t\t")
			for _, r := range ov.ByCategory {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f%%\n", r.CategoryName, r.CategoryType, core.FormatXOF(r.TotalAmount), r.Percentage)
			}
		}
	})
}

func transactionRows(tw *tabwriter.Writer, txs []core.Transaction) {
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tAMOUNT\tCATEGORY\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Date, tx.Type, core.FormatXOF(tx.Amount), tx.CategoryName, tx.Description)
	}
}

func pageFooter(tw *tabwriter.Writer, current, total, count int) {
	if total > 1 {
		fmt.Fprintf(tw, "page %d/%d, %d item(s)\n", current, total, count)
	}
}
