package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"wirevpn/internal/vpn"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
	colorFaint   = color.New(color.Faint).SprintFunc()
)

// Output prints command results to w.
type Output struct {
	w io.Writer
}

// NewOutput creates an output writer. noColor disables ANSI colours globally.
func NewOutput(w io.Writer, noColor bool) *Output {
	if noColor {
		color.NoColor = true
	}
	return &Output{w: w}
}

func (o *Output) Success(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorSuccess("✔"), fmt.Sprintf(format, args...))
}

func (o *Output) Warning(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorWarning("!"), fmt.Sprintf(format, args...))
}

func (o *Output) Info(format string, args ...interface{}) {
	fmt.Fprintf(o.w, "%s %s\n", colorInfo("i"), fmt.Sprintf(format, args...))
}

func (o *Output) Plain(format string, args ...interface{}) {
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Field prints an aligned "label  value" line.
func (o *Output) Field(label, value string) {
	fmt.Fprintf(o.w, "%-16s %s\n", colorFaint(label), value)
}

func (o *Output) Header(title string) {
	fmt.Fprintln(o.w, colorBold(title))
	fmt.Fprintln(o.w, strings.Repeat("─", len(title)))
}

// JSON prints v indented.
func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stateText colours a state name.
func stateText(s vpn.State) string {
	switch s {
	case vpn.StateConnected:
		return colorSuccess(string(s))
	case vpn.StateConnecting:
		return colorWarning(string(s))
	default:
		return colorError(string(s))
	}
}
