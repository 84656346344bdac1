package main

import (
	"errors"
	"fmt"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/codelens-dev/lens/internal/reviews"
	"github.com/spf13/cobra"
)

func waitCmd() *cobra.Command {
	var (
		quiet    bool
		maxPolls int
	)

	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Wait for a review to finish",
		Long: `Wait for a pending or processing review to finish.

Exit codes:
  0  Review completed
  1  Review failed, or any other error
  2  Still running after the maximum number of checks`,
		Args:        cobra.ExactArgs(1),
		Annotations: route("/reviews/{id}"),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := waitForReview(cmd, appFrom(cmd), args[0], maxPolls, quiet)
			var exitErr *exitError
			if quiet && err != nil && !errors.As(err, &exitErr) {
				return &exitError{code: 1}
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")
	cmd.Flags().IntVar(&maxPolls, "max-polls", 0, "give up after this many checks (default from config)")
	return cmd
}

// waitForReview follows review id until it settles or maxPolls checks have
// been made, then reports the outcome.
func waitForReview(cmd *cobra.Command, a *app, id string, maxPolls int, quiet bool) error {
	ctx := cmd.Context()
	if !a.reviews.FetchReview(ctx, id) {
		return a.fail(a.reviews.Error(reviews.OpFetch))
	}

	r := a.reviews.Focused()
	if r.Status.InProgress() {
		if maxPolls <= 0 {
			maxPolls = a.cfg.ResolvePollMaxAttempts()
		}
		if !quiet {
			fmt.Fprintf(a.out, "Waiting for review %s...\n", id)
		}
		a.reviews.StartPolling(ctx, id, maxPolls)
		if err := a.reviews.WaitPolling(ctx); err != nil {
			a.reviews.StopPolling()
			return err
		}
		r = a.reviews.Focused()
	}
	if a.expired.Load() {
		return errExpired
	}
	if r == nil {
		return errors.New("review disappeared while waiting")
	}

	switch {
	case r.Status == gateway.ReviewStatusCompleted:
		if !quiet {
			printSummary(a, r)
		}
		return nil
	case r.Status == gateway.ReviewStatusFailed:
		if !quiet {
			fmt.Fprintf(a.out, "Review %s %s\n", r.ID, a.ui.status(r.Status))
		}
		return &exitError{code: 1}
	case !r.Status.InProgress():
		if !quiet {
			fmt.Fprintf(a.out, "Review %s has unexpected status %q\n", r.ID, r.Status)
		}
		return &exitError{code: 1}
	default:
		if !quiet {
			fmt.Fprintf(a.out, "Review %s is still %s after %d checks\n", r.ID, a.ui.status(r.Status), a.reviews.PollAttempts())
		}
		return &exitError{code: 2}
	}
}

func printSummary(a *app, r *gateway.Review) {
	fmt.Fprintf(a.out, "Review %s %s  score %.1f\n", a.ui.bold.Render(r.ID), a.ui.status(r.Status), r.OverallScore)
	counts := make(map[gateway.Severity]int)
	for _, issue := range r.SecurityIssues {
		counts[issue.Severity]++
	}
	for _, sev := range severityOrder {
		if n := counts[sev]; n > 0 {
			fmt.Fprintf(a.out, "  %s %d\n", a.ui.severity(sev), n)
		}
	}
	if len(r.SecurityIssues) == 0 {
		fmt.Fprintln(a.out, "  no security issues found")
	}
}

var severityOrder = []gateway.Severity{
	gateway.SeverityCritical,
	gateway.SeverityHigh,
	gateway.SeverityMedium,
	gateway.SeverityLow,
	gateway.SeverityInfo,
}
