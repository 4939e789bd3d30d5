// Package ui provides console output for the jolokia CLI: message levels
// (quiet, normal, verbose) and terminal-aware coloring.
package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Printer writes leveled, styled messages. Core packages return data and
// errors; commands render them through a Printer.
type Printer struct {
	out     io.Writer
	errOut  io.Writer
	quiet   bool
	verbose bool

	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
}

// Options configures a Printer.
type Options struct {
	Quiet   bool
	Verbose bool
	NoColor bool
}

// NewPrinter creates a Printer writing normal output to out and warnings/
// errors to errOut. Colors are disabled by opts.NoColor, the NO_COLOR
// convention, or a non-terminal output.
func NewPrinter(out, errOut io.Writer, opts Options) *Printer {
	renderer := lipgloss.NewRenderer(out)
	if opts.NoColor || termenv.EnvNoColor() {
		renderer.SetColorProfile(termenv.Ascii)
	}

	return &Printer{
		out:     out,
		errOut:  errOut,
		quiet:   opts.Quiet,
		verbose: opts.Verbose,
		success: renderer.NewStyle().Foreground(lipgloss.Color("2")),
		warning: renderer.NewStyle().Foreground(lipgloss.Color("3")),
		failure: renderer.NewStyle().Foreground(lipgloss.Color("1")),
		dim:     renderer.NewStyle().Faint(true),
	}
}

// Infof prints a normal-level message. Suppressed by --quiet.
func (p *Printer) Infof(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Verbosef prints a message only with --verbose.
func (p *Printer) Verbosef(format string, args ...any) {
	if !p.verbose || p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.dim.Render(fmt.Sprintf(format, args...)))
}

// Successf prints a highlighted success message. Suppressed by --quiet.
func (p *Printer) Successf(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.success.Render(fmt.Sprintf(format, args...)))
}

// Warnf prints a warning to the error stream. Not suppressed by --quiet.
func (p *Printer) Warnf(format string, args ...any) {
	fmt.Fprintln(p.errOut, p.warning.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// Errorf prints an error to the error stream.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintln(p.errOut, p.failure.Render("Error: "+fmt.Sprintf(format, args...)))
}
