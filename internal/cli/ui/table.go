// Package ui renders colored terminal output for the fixhub CLI
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Table renders rows under a bold header and a rule
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{writer: w, headers: headers, noColor: noColor}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render writes the table. Cells beyond the header count are dropped.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	header := t.color(color.Bold, color.FgCyan)
	rule := t.color(color.FgHiBlack)

	for i, h := range t.headers {
		header.Fprint(t.writer, pad(h, widths[i], i == len(widths)-1))
	}
	fmt.Fprintln(t.writer)
	for i, w := range widths {
		rule.Fprint(t.writer, pad(strings.Repeat("─", w), w, i == len(widths)-1))
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			fmt.Fprint(t.writer, pad(cell, widths[i], i == len(widths)-1))
		}
		fmt.Fprintln(t.writer)
	}
}

func (t *Table) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if t.noColor {
		c.DisableColor()
	}
	return c
}

// pad right-pads s to width plus a two space gutter. The last column is
// left as is.
func pad(s string, width int, last bool) string {
	if last {
		return s
	}
	n := width - len([]rune(s))
	if n < 0 {
		n = 0
	}
	return s + strings.Repeat(" ", n+2)
}

// KeyValueTable renders aligned "key: value" lines
type KeyValueTable struct {
	writer  io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates a key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair
func (t *KeyValueTable) AddRow(key, value string) {
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Render writes the table
func (t *KeyValueTable) Render() {
	width := 0
	for _, k := range t.keys {
		if len(k) > width {
			width = len(k)
		}
	}

	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for i, k := range t.keys {
		cyan.Fprint(t.writer, k+":"+strings.Repeat(" ", width-len(k)))
		fmt.Fprintf(t.writer, " %s\n", t.values[i])
	}
}

// Heading writes a bold section title followed by a blank line
func Heading(w io.Writer, title string, noColor bool) {
	c := color.New(color.Bold, color.FgCyan)
	if noColor {
		c.DisableColor()
	}
	c.Fprintln(w, title)
	fmt.Fprintln(w)
}
