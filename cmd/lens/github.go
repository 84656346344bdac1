package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/codelens-dev/lens/internal/nav"
	"github.com/codelens-dev/lens/internal/session"
	"github.com/spf13/cobra"
)

func githubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "github",
		Short: "Link GitHub and browse your repositories",
	}
	cmd.AddCommand(githubLinkCmd())
	cmd.AddCommand(githubUnlinkCmd())
	cmd.AddCommand(githubCallbackCmd())
	cmd.AddCommand(githubReposCmd())
	cmd.AddCommand(githubBranchesCmd())
	return cmd
}

func githubLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "link",
		Short:       "Link a GitHub account to this account",
		Args:        cobra.NoArgs,
		Annotations: route(nav.ProfilePath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if a.session.HasExternalAccount() {
				fmt.Fprintf(a.out, "Already linked to @%s\n", *a.session.User().GitHubLogin)
				return nil
			}
			if !a.session.LinkExternal(cmd.Context()) {
				return a.fail(a.session.Error(session.OpExternal))
			}
			fmt.Fprintln(a.out, "Then run: lens github callback --linked")
			return nil
		},
	}
}

func githubUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "unlink",
		Short:       "Detach the linked GitHub account",
		Args:        cobra.NoArgs,
		Annotations: route(nav.ProfilePath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if !a.session.HasExternalAccount() {
				return errors.New("no GitHub account is linked")
			}
			if !a.session.UnlinkExternal(cmd.Context()) {
				return a.fail(a.session.Error(session.OpExternal))
			}
			fmt.Fprintln(a.out, "GitHub account unlinked")
			return nil
		},
	}
}

func githubCallbackCmd() *cobra.Command {
	var linked bool

	cmd := &cobra.Command{
		Use:   "callback [token]",
		Short: "Finish a GitHub sign-in or link",
		Long: `Finish the GitHub flow started by "lens login --github" or "lens github link".

Examples:
  lens github callback eyJhbGciOi...   # Complete a GitHub sign-in
  lens github callback --linked        # Complete an account link`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: route(""),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()

			if linked == (len(args) == 1) {
				return errors.New("give either a token or --linked")
			}

			if linked {
				to := nav.Location{Path: nav.ProfilePath, Query: url.Values{nav.StatusParam: {nav.StatusGitHubLinked}}}
				if err := a.enter(ctx, to); err != nil {
					return err
				}
				if !a.session.HasExternalAccount() {
					return errors.New("GitHub account is not linked yet")
				}
				fmt.Fprintf(a.out, "Linked to @%s\n", *a.session.User().GitHubLogin)
				return a.resume(ctx)
			}

			to := nav.Location{Path: nav.LoginPath, Query: url.Values{nav.TokenParam: {args[0]}}}
			got, err := a.router.Go(ctx, to)
			if err != nil {
				return err
			}
			if got.Path != nav.HomePath || !a.session.FullyLoaded() {
				if msg := a.session.Error(session.OpExternalLogin); msg != "" {
					return errors.New(msg)
				}
				return errors.New("GitHub sign-in failed: the token was not accepted")
			}
			fmt.Fprintf(a.out, "Signed in as %s\n", a.ui.bold.Render(a.session.User().Username))
			return nil
		},
	}

	cmd.Flags().BoolVar(&linked, "linked", false, "the GitHub account was just linked")
	return cmd
}

func githubReposCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "repos",
		Short:       "List repositories of the linked GitHub account",
		Args:        cobra.NoArgs,
		Annotations: route(nav.NewReviewPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			repos, err := a.client.ListRepositories(cmd.Context())
			if err != nil {
				return a.apiError(err, "failed to list repositories")
			}
			if len(repos) == 0 {
				fmt.Fprintln(a.out, "No repositories found.")
				return nil
			}
			for _, r := range repos {
				lang := ""
				if r.Language != nil {
					lang = *r.Language
				}
				visibility := ""
				if r.Private {
					visibility = a.ui.dim.Render("private")
				}
				fmt.Fprintf(a.out, "%s  %s  %s\n", fit(r.FullName, 40), fit(lang, 12), visibility)
			}
			return nil
		},
	}
}

func githubBranchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "branches <owner/repo>",
		Short:       "List branches of a repository",
		Args:        cobra.ExactArgs(1),
		Annotations: route(nav.NewReviewPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, ok := strings.Cut(args[0], "/")
			if !ok || owner == "" || repo == "" {
				return fmt.Errorf("expected owner/repo, got %q", args[0])
			}
			a := appFrom(cmd)
			branches, err := a.client.ListBranches(cmd.Context(), owner, repo)
			if err != nil {
				return a.apiError(err, "failed to list branches")
			}
			for _, b := range branches {
				fmt.Fprintln(a.out, b)
			}
			return nil
		},
	}
}

// resume goes back to the page saved when the link flow started and shows
// it. Without a saved page there is nothing more to do.
func (a *app) resume(ctx context.Context) error {
	back, ok := a.session.ReturnURL()
	if !ok {
		return nil
	}
	loc, err := nav.ParseLocation(back)
	if err != nil {
		return fmt.Errorf("bad return location %q: %w", back, err)
	}
	if err := a.enter(ctx, loc); err != nil {
		return err
	}
	fmt.Fprintln(a.out)
	if loc.Path == nav.ProfilePath {
		printUser(a, a.session.User())
		return nil
	}
	fmt.Fprintf(a.out, "Back at %s\n", loc)
	return nil
}
