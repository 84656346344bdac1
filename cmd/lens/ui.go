package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/codelens-dev/lens/internal/gateway"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultWidth = 100

// ui holds the output styles. Colors are dropped when the output is not a
// terminal or color is turned off.
type ui struct {
	tty   bool
	color bool
	width int
	dark  bool

	bold    lipgloss.Style
	dim     lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	info    lipgloss.Style
	heading lipgloss.Style
}

func newUI(w io.Writer, noColor bool) *ui {
	r := lipgloss.NewRenderer(w)
	f, tty := terminalFile(w)
	u := &ui{tty: tty, color: tty && !noColor, width: defaultWidth}
	if !u.color {
		r.SetColorProfile(termenv.Ascii)
	}
	if tty {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			u.width = width
		}
		u.dark = r.HasDarkBackground()
	}

	u.bold = r.NewStyle().Bold(true)
	u.dim = r.NewStyle().Foreground(lipgloss.Color("245"))
	u.good = r.NewStyle().Foreground(lipgloss.Color("34"))
	u.warn = r.NewStyle().Foreground(lipgloss.Color("214"))
	u.bad = r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	u.info = r.NewStyle().Foreground(lipgloss.Color("33"))
	u.heading = r.NewStyle().Bold(true).Underline(true)
	return u
}

func terminalFile(w any) (*os.File, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return nil, false
	}
	return f, isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (u *ui) status(s gateway.ReviewStatus) string {
	switch s {
	case gateway.ReviewStatusCompleted:
		return u.good.Render(string(s))
	case gateway.ReviewStatusFailed:
		return u.bad.Render(string(s))
	case gateway.ReviewStatusProcessing:
		return u.info.Render(string(s))
	default:
		return u.warn.Render(string(s))
	}
}

func (u *ui) severity(s gateway.Severity) string {
	label := strings.ToUpper(string(s))
	switch s {
	case gateway.SeverityCritical:
		return u.bad.Render(label)
	case gateway.SeverityHigh:
		return u.warn.Render(label)
	case gateway.SeverityMedium:
		return u.info.Render(label)
	default:
		return u.dim.Render(label)
	}
}

// fit truncates s to width display cells and pads it to exactly width.
// Wide (CJK) runes count as two cells.
func fit(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

// renderMarkdown renders md for the terminal with glamour.
func (u *ui) renderMarkdown(md string) (string, error) {
	style := styles.NoTTYStyle
	if u.color {
		style = styles.LightStyle
		if u.dark {
			style = styles.DarkStyle
		}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(min(u.width, 120)),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

// readLine reads one line from r without buffering past it, so several
// prompts can share stdin.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				break
			}
			return "", err
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}

func prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := readLine(cmd.InOrStdin())
	return strings.TrimSpace(line), err
}

// readPassword reads a secret without echo when stdin is a terminal and
// as a plain line otherwise.
func readPassword(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	if f, tty := terminalFile(cmd.InOrStdin()); tty {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(pw), err
	}
	return readLine(cmd.InOrStdin())
}

func confirm(cmd *cobra.Command, question string) bool {
	answer, err := prompt(cmd, question+" [y/N] ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// readSource reads review input from a file, or stdin for "-".
func readSource(cmd *cobra.Command, path string) (string, error) {
	if path != "-" {
		data, err := os.ReadFile(path)
		return string(data), err
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	return string(data), err
}
