package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/codelens-dev/lens/internal/nav"
	"github.com/codelens-dev/lens/internal/reviews"
	"github.com/spf13/cobra"
)

var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".php":   "php",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".sh":    "bash",
	".sql":   "sql",
}

func detectLanguage(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

func reviewCmd() *cobra.Command {
	var (
		in       gateway.CreateReviewInput
		repo     string
		wait     bool
		maxPolls int
	)

	cmd := &cobra.Command{
		Use:   "review [file|-]",
		Short: "Submit code for a security review",
		Long: `Submit a file, stdin, or a GitHub repository branch for review.

Examples:
  lens review main.go                       # Review a file
  cat handler.py | lens review - -t api     # Review stdin
  lens review --repo me/app --branch main   # Review a linked repository
  lens review main.go --wait                # Submit and wait for the result`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: route(nav.NewReviewPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)

			switch {
			case repo != "" && len(args) > 0:
				return errors.New("give either a file or --repo, not both")
			case repo != "":
				owner, name, ok := strings.Cut(repo, "/")
				if !ok || owner == "" || name == "" {
					return fmt.Errorf("expected --repo owner/name, got %q", repo)
				}
				in.RepoOwner, in.RepoName = owner, name
				if in.Title == "" {
					in.Title = repo
				}
			default:
				src := "-"
				if len(args) > 0 {
					src = args[0]
				}
				code, err := readSource(cmd, src)
				if err != nil {
					return fmt.Errorf("read %s: %w", src, err)
				}
				if strings.TrimSpace(code) == "" {
					return errors.New("nothing to review")
				}
				in.Code = code
				if in.Title == "" && src != "-" {
					in.Title = filepath.Base(src)
				}
				if in.Language == "" {
					in.Language = detectLanguage(src)
				}
			}
			if in.Title == "" {
				return errors.New("--title is required when reading stdin")
			}

			r := a.reviews.CreateReview(cmd.Context(), in)
			if r == nil {
				return a.fail(a.reviews.Error(reviews.OpCreate))
			}
			fmt.Fprintf(a.out, "Created review %s (%s)\n", a.ui.bold.Render(r.ID), a.ui.status(r.Status))
			if !wait {
				return nil
			}
			return waitForReview(cmd, a, r.ID, maxPolls, false)
		},
	}

	cmd.Flags().StringVarP(&in.Title, "title", "t", "", "review title (default: file name)")
	cmd.Flags().StringVarP(&in.Language, "language", "l", "", "source language (default: from file extension)")
	cmd.Flags().StringVar(&in.CustomPrompt, "prompt", "", "extra instructions for the reviewer")
	cmd.Flags().StringVar(&repo, "repo", "", "review a linked GitHub repository (owner/name)")
	cmd.Flags().StringVar(&in.RepoBranch, "branch", "", "repository branch (with --repo)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the review to finish")
	cmd.Flags().IntVar(&maxPolls, "max-polls", 0, "give up waiting after this many checks (default from config)")
	return cmd
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "rm <id>...",
		Short:       "Delete reviews",
		Args:        cobra.MinimumNArgs(1),
		Annotations: route(nav.ReviewsPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			var failed bool
			for _, id := range args {
				if !a.reviews.DeleteReview(cmd.Context(), id) {
					if err := a.fail(a.reviews.Error(reviews.OpDelete)); errors.Is(err, errExpired) {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", id, a.reviews.Error(reviews.OpDelete))
					failed = true
					continue
				}
				fmt.Fprintf(a.out, "Deleted %s\n", id)
			}
			if failed {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func reanalyzeCmd() *cobra.Command {
	var (
		wait     bool
		maxPolls int
	)

	cmd := &cobra.Command{
		Use:         "reanalyze <id>",
		Short:       "Run a review again",
		Args:        cobra.ExactArgs(1),
		Annotations: route("/reviews/{id}"),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			r := a.reviews.ReanalyzeReview(cmd.Context(), args[0])
			if r == nil {
				return a.fail(a.reviews.Error(reviews.OpReanalyze))
			}
			fmt.Fprintf(a.out, "Review %s resubmitted (%s)\n", a.ui.bold.Render(r.ID), a.ui.status(r.Status))
			if !wait {
				return nil
			}
			return waitForReview(cmd, a, r.ID, maxPolls, false)
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the review to finish")
	cmd.Flags().IntVar(&maxPolls, "max-polls", 0, "give up waiting after this many checks (default from config)")
	return cmd
}
