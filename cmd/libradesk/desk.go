// cmd/libradesk/desk.go
package main

import (
	"fmt"
	"libradesk/internal/clients"
	"libradesk/internal/ledger"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	onDate       string
	overrideCap  bool
	readerFilter string
	topN         int

	borrowCmd = &cobra.Command{
		Use:   "borrow <isbn> <subscriber>",
		Short: "Lend a book to a reader",
		Args:  cobra.ExactArgs(2),
		RunE:  runBorrow,
	}

	returnCmd = &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Close a loan and put the book back on the shelf",
		Args:  cobra.ExactArgs(1),
		RunE:  runReturn,
	}

	overdueCmd = &cobra.Command{
		Use:   "overdue",
		Short: "List loans past their due date",
		Args:  cobra.NoArgs,
		RunE:  runOverdue,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show circulation counters and the most borrowed books",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
)

func init() {
	for _, c := range []*cobra.Command{borrowCmd, returnCmd, overdueCmd, statsCmd} {
		c.Flags().StringVar(&onDate, "date", "", "operation date as YYYY-MM-DD (default today)")
	}
	borrowCmd.Flags().BoolVar(&overrideCap, "override-limit", false, "lend even if the monthly limit is reached")
	overdueCmd.Flags().StringVar(&readerFilter, "reader", "", "only this subscriber's loans")
	statsCmd.Flags().IntVarP(&topN, "top", "n", 5, "number of most borrowed books to show")
}

func deskClient() *clients.DeskClient {
	return clients.NewDeskClient(serverURL, nil)
}

func dateFlag() (time.Time, error) {
	if onDate == "" {
		return time.Time{}, nil
	}
	d, err := ledger.ParseDay(onDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}

func runBorrow(cmd *cobra.Command, args []string) error {
	date, err := dateFlag()
	if err != nil {
		return err
	}
	res, err := deskClient().Borrow(cmd.Context(), args[0], args[1], date, overrideCap)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "loan %s: %s to %s, due %s\n", res.Loan.ID, res.Loan.BookISBN,
		res.Loan.SubscriberNumber, res.Loan.DueDate.Format(ledger.DateLayout))
	if res.MonthlyLimitReached {
		fmt.Fprintf(out, "note: reader had %d loans this month (limit %d)\n", res.MonthlyLoanCount, res.MonthlyLoanLimit)
	}
	for _, l := range res.OverdueLoans {
		fmt.Fprintf(out, "warning: %s was due %s\n", l.BookISBN, l.DueDate.Format(ledger.DateLayout))
	}
	return nil
}

func runReturn(cmd *cobra.Command, args []string) error {
	date, err := dateFlag()
	if err != nil {
		return err
	}
	loan, err := deskClient().Return(cmd.Context(), args[0], date)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loan %s returned on %s\n", loan.ID, loan.ReturnDate.Format(ledger.DateLayout))
	return nil
}

func runOverdue(cmd *cobra.Command, args []string) error {
	date, err := dateFlag()
	if err != nil {
		return err
	}
	loans, err := deskClient().Overdue(cmd.Context(), readerFilter, date)
	if err != nil {
		return err
	}
	if len(loans) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no overdue loans")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOAN\tBOOK\tREADER\tDUE\tDAYS LATE")
	for _, l := range loans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", l.ID, l.BookISBN, l.SubscriberNumber,
			l.DueDate.Format(ledger.DateLayout), l.DaysOverdue)
	}
	return w.Flush()
}

func runStats(cmd *cobra.Command, args []string) error {
	date, err := dateFlag()
	if err != nil {
		return err
	}
	c := deskClient()
	sum, err := c.Summary(cmd.Context(), date)
	if err != nil {
		return err
	}
	top, err := c.TopBooks(cmd.Context(), topN)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "books\t%d\n", sum.Books)
	fmt.Fprintf(w, "readers\t%d\n", sum.Readers)
	fmt.Fprintf(w, "loans\t%d\n", sum.Loans)
	fmt.Fprintf(w, "open loans\t%d\n", sum.OpenLoans)
	fmt.Fprintf(w, "overdue loans\t%d\n", sum.OverdueLoans)
	if len(top) > 0 {
		fmt.Fprintln(w, "\nMOST BORROWED\tLOANS")
		for _, b := range top {
			name := b.ISBN
			if b.Title != "" {
				name = b.Title + " (" + b.ISBN + ")"
			}
			fmt.Fprintf(w, "%s\t%d\n", name, b.Count)
		}
	}
	return w.Flush()
}
