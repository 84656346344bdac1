package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/codelens-dev/lens/internal/nav"
	"github.com/codelens-dev/lens/internal/reviews"
	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	var (
		page       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your reviews",
		Long: `List your reviews, newest first, one page at a time.

Examples:
  lens list             # First page
  lens list --page 2    # Second page
  lens list --json      # Output as JSON`,
		Args:        cobra.NoArgs,
		Annotations: route(nav.ReviewsPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if !a.reviews.FetchReviews(cmd.Context(), page) {
				return a.fail(a.reviews.Error(reviews.OpFetch))
			}
			rs := a.reviews.Reviews()

			if jsonOutput {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"reviews":     rs,
					"page":        a.reviews.Page(),
					"total":       a.reviews.Total(),
					"total_pages": a.reviews.TotalPages(),
				})
			}

			if len(rs) == 0 {
				fmt.Fprintln(a.out, "No reviews found.")
				return nil
			}

			titleWidth := max(a.ui.width-52, 20)
			fmt.Fprintf(a.out, "%s  %s  %s  %s  %s\n",
				fit("ID", 10), fit("STATUS", 10), fit("SCORE", 5), fit("ISSUES", 6), "TITLE")
			for _, r := range rs {
				score := ""
				if r.Status == gateway.ReviewStatusCompleted {
					score = strconv.FormatFloat(r.OverallScore, 'f', 1, 64)
				}
				// Pad before styling so escape codes do not count as width.
				status := a.ui.status(r.Status) + fit("", 10-len(r.Status))
				fmt.Fprintf(a.out, "%s  %s  %s  %s  %s\n",
					fit(r.ID, 10), status, fit(score, 5),
					fit(strconv.Itoa(len(r.SecurityIssues)), 6), fit(r.Title, titleWidth))
			}

			fmt.Fprintln(a.out, a.ui.dim.Render(fmt.Sprintf("page %d of %d, %d reviews",
				a.reviews.Page(), a.reviews.TotalPages(), a.reviews.Total())))
			if a.reviews.HasMore() {
				fmt.Fprintln(a.out, a.ui.dim.Render(fmt.Sprintf("more: lens list --page %d", a.reviews.Page()+1)))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func statsCmd() *cobra.Command {
	var (
		page       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:         "stats",
		Short:       "Summarize findings across a page of reviews",
		Args:        cobra.NoArgs,
		Annotations: route(nav.ReviewsPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if !a.reviews.FetchReviews(cmd.Context(), page) {
				return a.fail(a.reviews.Error(reviews.OpFetch))
			}
			st := a.reviews.Stats()

			if jsonOutput {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			fmt.Fprintf(a.out, "%s %d\n", fit("Critical findings", 20), st.CriticalCount)
			fmt.Fprintf(a.out, "%s %d\n", fit("High findings", 20), st.HighCount)
			fmt.Fprintf(a.out, "%s %d\n", fit("Completed", 20), st.CompletedCount)
			fmt.Fprintf(a.out, "%s %d\n", fit("In progress", 20), st.PendingCount)
			fmt.Fprintln(a.out, a.ui.dim.Render(fmt.Sprintf("page %d of %d", a.reviews.Page(), a.reviews.TotalPages())))
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
