package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
)

// newTable builds a table writer whose decoration matches the output target:
// rounded borders on a terminal, plain columns when piped.
func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		t.SetStyle(table.StyleRounded)
	} else {
		style := table.StyleDefault
		style.Options.DrawBorder = false
		style.Options.SeparateColumns = true
		style.Options.SeparateHeader = true
		style.Options.SeparateRows = false
		t.SetStyle(style)
	}
	return t
}
