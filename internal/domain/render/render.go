// Package render turns result sets into compact human-readable
// markdown. Output is bounded both per cell and in total so a result
// never overwhelms the consumer.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/consumerlens/consumerlens/internal/adapters/db"
)

const (
	// CharacterLimit bounds the total rendered response.
	CharacterLimit = 25000
	// cellLimit bounds a single table cell.
	cellLimit = 80

	truncationNotice = "\n\n*(output truncated: narrow the query or aggregate further)*"
)

// Table renders a result set as a markdown table. Cells longer than
// the cell limit are cut with an ellipsis.
func Table(rs *db.RowSet) string {
	if rs == nil || len(rs.Columns) == 0 {
		return "*(no columns)*"
	}
	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(strings.Join(rs.Columns, " | "))
	b.WriteString(" |\n|")
	for range rs.Columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rs.Rows {
		b.WriteString("|")
		for _, v := range row {
			b.WriteString(" ")
			b.WriteString(cell(v))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Document assembles the full markdown response: optional header
// lines, the table, optional warnings and a row-count footer, all
// clamped to the character limit.
func Document(rs *db.RowSet, header []string, warnings []string) string {
	var b strings.Builder
	for _, h := range header {
		b.WriteString(h)
		b.WriteString("\n")
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	if rs == nil || rs.Empty() {
		b.WriteString("*(no rows returned)*\n")
	} else {
		b.WriteString(Table(rs))
		b.WriteString(fmt.Sprintf("\n%d row(s), %s\n", len(rs.Rows), rs.Elapsed.Round(time.Millisecond)))
	}

	for _, w := range warnings {
		b.WriteString("\n> ")
		b.WriteString(w)
	}
	if len(warnings) > 0 {
		b.WriteString("\n")
	}
	return Clamp(b.String())
}

// Clamp cuts s at the character limit, appending a notice when it
// does. The result, notice included, stays within the limit.
func Clamp(s string) string {
	if len(s) <= CharacterLimit {
		return s
	}
	cut := CharacterLimit - len(truncationNotice)
	// do not split a multi-byte rune
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationNotice
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func cell(v any) string {
	s := db.ToString(v)
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > cellLimit {
		cut := cellLimit - 3
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}
