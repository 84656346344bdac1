package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/codelens-dev/lens/internal/reviews"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func showCmd() *cobra.Command {
	var (
		jsonOutput bool
		yamlOutput bool
		render     bool
		showCode   bool
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a review and its findings",
		Long: `Show a review and its findings.

Examples:
  lens show r1            # Findings, formatted for the terminal
  lens show r1 --render   # The service's Markdown report, rendered
  lens show r1 --yaml     # Output as YAML`,
		Args:        cobra.ExactArgs(1),
		Annotations: route("/reviews/{id}"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput && yamlOutput {
				return fmt.Errorf("cannot use both --json and --yaml")
			}
			a := appFrom(cmd)
			ctx := cmd.Context()
			if !a.reviews.FetchReview(ctx, args[0]) {
				return a.fail(a.reviews.Error(reviews.OpFetch))
			}
			r := a.reviews.Focused()

			switch {
			case jsonOutput:
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			case yamlOutput:
				return writeYAML(a, r)
			case render:
				md, err := a.client.DownloadMarkdown(ctx, r.ID)
				if err != nil {
					return a.apiError(err, "failed to download Markdown")
				}
				out, err := a.ui.renderMarkdown(string(md))
				if err != nil {
					return err
				}
				fmt.Fprint(a.out, out)
				return nil
			}

			printReview(a, r, showCode)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&yamlOutput, "yaml", false, "output as YAML")
	cmd.Flags().BoolVar(&render, "render", false, "render the Markdown report")
	cmd.Flags().BoolVar(&showCode, "code", false, "include the submitted code")
	return cmd
}

// writeYAML emits r with the same field names as the JSON form.
func writeYAML(a *app, r *gateway.Review) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(a.out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(doc)
}

func printReview(a *app, r *gateway.Review, showCode bool) {
	fmt.Fprintf(a.out, "%s  %s\n", a.ui.heading.Render(r.Title), a.ui.dim.Render(r.ID))
	meta := []string{a.ui.status(r.Status)}
	if r.Language != "" {
		meta = append(meta, r.Language)
	}
	if r.Status == gateway.ReviewStatusCompleted {
		meta = append(meta, fmt.Sprintf("score %.1f", r.OverallScore))
	}
	meta = append(meta, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintln(a.out, strings.Join(meta, "  "))

	if r.Summary != "" {
		fmt.Fprintf(a.out, "\n%s\n", r.Summary)
	}

	if len(r.SecurityIssues) > 0 {
		fmt.Fprintf(a.out, "\n%s\n", a.ui.bold.Render("Security issues"))
		for _, issue := range r.SecurityIssues {
			fmt.Fprintf(a.out, "\n%s %s\n", a.ui.severity(issue.Severity), issue.Title)
			if loc := issueLocation(issue); loc != "" {
				fmt.Fprintf(a.out, "  %s\n", a.ui.dim.Render(loc))
			}
			if issue.Description != "" {
				fmt.Fprintf(a.out, "  %s\n", issue.Description)
			}
			if issue.Suggestion != "" {
				fmt.Fprintf(a.out, "  %s %s\n", a.ui.good.Render("fix:"), issue.Suggestion)
			}
		}
	}

	if len(r.Suggestions) > 0 {
		fmt.Fprintf(a.out, "\n%s\n", a.ui.bold.Render("Suggestions"))
		for _, s := range r.Suggestions {
			fmt.Fprintf(a.out, "  - %s\n", s)
		}
	}

	if showCode && r.Code != "" {
		fmt.Fprintf(a.out, "\n%s\n%s", a.ui.bold.Render("Code"), r.Code)
		if !strings.HasSuffix(r.Code, "\n") {
			fmt.Fprintln(a.out)
		}
	}
}

func issueLocation(issue gateway.SecurityIssue) string {
	var parts []string
	if issue.FilePath != nil {
		loc := *issue.FilePath
		if issue.LineStart != nil {
			loc += fmt.Sprintf(":%d", *issue.LineStart)
			if issue.LineEnd != nil && *issue.LineEnd != *issue.LineStart {
				loc += fmt.Sprintf("-%d", *issue.LineEnd)
			}
		}
		parts = append(parts, loc)
	}
	if issue.CWE != nil {
		parts = append(parts, *issue.CWE)
	}
	return strings.Join(parts, "  ")
}

func exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:         "export <id>",
		Short:       "Download a review report as PDF or Markdown",
		Args:        cobra.ExactArgs(1),
		Annotations: route("/reviews/{id}"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()
			id := args[0]

			if format != "pdf" && format != "md" {
				return fmt.Errorf("unknown format %q (use pdf or md)", format)
			}
			if !a.reviews.FetchReview(ctx, id) {
				return a.fail(a.reviews.Error(reviews.OpFetch))
			}
			title := a.reviews.Focused().Title
			a.saver.dir = output

			var ok bool
			if format == "pdf" {
				ok = a.reviews.DownloadPDF(ctx, id, title)
			} else {
				ok = a.reviews.DownloadMarkdown(ctx, id, title)
			}
			if !ok {
				return a.fail(a.reviews.Error(reviews.OpDownload))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "pdf", "report format: pdf or md")
	cmd.Flags().StringVarP(&output, "output", "o", ".", "directory to save the report in")
	return cmd
}
