package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd, cleanup := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	cleanup()
	stop()

	if err != nil {
		// Check for exitError to exit with specific code without extra output
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. cleanup releases whatever the
// executed command opened and must run after Execute returns.
func newRootCmd() (*cobra.Command, func()) {
	var (
		apiURL    string
		verbose   bool
		noColor   bool
		ephemeral bool
		opened    *app
	)

	rootCmd := &cobra.Command{
		Use:           "lens",
		Short:         "Security-focused code review from the terminal",
		Long:          "lens submits code to the review service, follows reviews while they run, and shows their findings.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			route, ok := cmd.Annotations[routeAnnotation]
			if !ok {
				return nil
			}
			a, err := newApp(cmd, appOptions{apiURL: apiURL, verbose: verbose, noColor: noColor, ephemeral: ephemeral})
			if err != nil {
				return err
			}
			opened = a
			cmd.SetContext(withApp(cmd.Context(), a))
			if route == "" {
				return nil
			}
			return a.enter(cmd.Context(), routeLocation(route, args))
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "review service URL (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep the credential in memory only")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(passwdCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(githubCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(waitCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(reanalyzeCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(errorsCmd())
	rootCmd.AddCommand(versionCmd())

	cleanup := func() {
		if opened != nil {
			opened.Close()
			opened = nil
		}
	}
	return rootCmd, cleanup
}
