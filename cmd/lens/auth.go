package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/codelens-dev/lens/internal/nav"
	"github.com/codelens-dev/lens/internal/session"
	"github.com/spf13/cobra"
)

func loginCmd() *cobra.Command {
	var (
		email  string
		github bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the review service",
		Long: `Sign in with email and password, or with GitHub.

With --github, lens prints an authorization URL. After authorizing, the
service shows a token; finish with "lens github callback <token>".

Examples:
  lens login                     # Prompt for email and password
  lens login --email me@x.com    # Prompt for password only
  lens login --github            # Sign in with GitHub`,
		Args:        cobra.NoArgs,
		Annotations: route(nav.LoginPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()

			if github {
				if !a.session.LoginWithExternal(ctx) {
					return a.fail(a.session.Error(session.OpExternalLogin))
				}
				fmt.Fprintln(a.out, "Then run: lens github callback <token>")
				return nil
			}

			var err error
			if email == "" {
				if email, err = prompt(cmd, "Email: "); err != nil {
					return err
				}
			}
			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			if !a.session.Login(ctx, email, password) {
				return a.fail(a.session.Error(session.OpLogin))
			}
			fmt.Fprintf(a.out, "Signed in as %s\n", a.ui.bold.Render(a.session.User().Username))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&github, "github", false, "sign in with GitHub")
	return cmd
}

func registerCmd() *cobra.Command {
	var username, email string

	cmd := &cobra.Command{
		Use:         "register",
		Short:       "Create an account and sign in",
		Args:        cobra.NoArgs,
		Annotations: route(nav.RegisterPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)

			var err error
			if username == "" {
				if username, err = prompt(cmd, "Username: "); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = prompt(cmd, "Email: "); err != nil {
					return err
				}
			}
			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			again, err := readPassword(cmd, "Confirm password: ")
			if err != nil {
				return err
			}
			if password != again {
				return errors.New("passwords do not match")
			}

			if !a.session.Register(cmd.Context(), username, email, password) {
				return a.fail(a.session.Error(session.OpRegister))
			}
			fmt.Fprintf(a.out, "Account created, signed in as %s\n", a.ui.bold.Render(a.session.User().Username))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Sign out and forget the stored credential",
		Args:        cobra.NoArgs,
		Annotations: route(""),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			a.session.Logout()
			fmt.Fprintln(a.out, "Signed out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:         "whoami",
		Short:       "Show the signed-in account",
		Args:        cobra.NoArgs,
		Annotations: route(nav.ProfilePath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			u := a.session.User()
			if u == nil {
				return errNotSignedIn
			}
			if jsonOutput {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(u)
			}
			printUser(a, u)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printUser(a *app, u *gateway.User) {
	fmt.Fprintf(a.out, "%s %s\n", a.ui.bold.Render(u.Username), a.ui.dim.Render("<"+u.Email+">"))
	github := a.ui.dim.Render("not linked")
	if u.GitHubLogin != nil {
		github = "@" + *u.GitHubLogin
	}
	fmt.Fprintf(a.out, "GitHub:  %s\n", github)
	if u.AvatarURL != nil {
		fmt.Fprintf(a.out, "Avatar:  %s\n", *u.AvatarURL)
	}
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(a.out, "Member since %s\n", u.CreatedAt.Format("2006-01-02"))
	}
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage your profile",
	}
	cmd.AddCommand(profileUpdateCmd())
	return cmd
}

func profileUpdateCmd() *cobra.Command {
	var in gateway.UpdateUserInput

	cmd := &cobra.Command{
		Use:         "update",
		Short:       "Change username or avatar",
		Args:        cobra.NoArgs,
		Annotations: route(nav.ProfilePath),
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Username == "" && in.AvatarURL == "" {
				return errors.New("nothing to update (use --username or --avatar-url)")
			}
			a := appFrom(cmd)
			if !a.session.UpdateProfile(cmd.Context(), in) {
				return a.fail(a.session.Error(session.OpProfile))
			}
			fmt.Fprintln(a.out, "Profile updated")
			printUser(a, a.session.User())
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Username, "username", "", "new username")
	cmd.Flags().StringVar(&in.AvatarURL, "avatar-url", "", "new avatar URL")
	return cmd
}

func passwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "passwd",
		Short:       "Change your password",
		Args:        cobra.NoArgs,
		Annotations: route(nav.ProfilePath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)

			current, err := readPassword(cmd, "Current password: ")
			if err != nil {
				return err
			}
			next, err := readPassword(cmd, "New password: ")
			if err != nil {
				return err
			}
			again, err := readPassword(cmd, "Confirm new password: ")
			if err != nil {
				return err
			}
			if next != again {
				return errors.New("passwords do not match")
			}

			if !a.session.ChangePassword(cmd.Context(), current, next) {
				return a.fail(a.session.Error(session.OpPassword))
			}
			fmt.Fprintln(a.out, "Password changed")
			return nil
		},
	}
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage your account",
	}
	cmd.AddCommand(accountDeleteCmd())
	return cmd
}

func accountDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:         "delete",
		Short:       "Delete your account and all its reviews",
		Args:        cobra.NoArgs,
		Annotations: route(nav.ProfilePath),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if !yes && !confirm(cmd, fmt.Sprintf("Delete account %s? This cannot be undone.", a.session.User().Email)) {
				return &exitError{code: 1}
			}
			if !a.session.DeleteAccount(cmd.Context()) {
				return a.fail(a.session.Error(session.OpDeleteAccount))
			}
			fmt.Fprintln(a.out, "Account deleted")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
