// Package report renders operator-facing summaries of a pull or fsck pass
// as aligned tables, the way an operator tails a cron job's output.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Row is one repository's outcome in a pass, shared by the pull engine and
// the fsck controller so a single renderer serves both.
type Row struct {
	Path     string
	Action   string // e.g. "updated", "cloned", "skipped", "failed", "recloned"
	Detail   string
	Err      error
	Duration time.Duration
}

// Summary renders the counts line a pass ends with, e.g.
// "14 updated, 2 skipped, 1 failed in 3m12s".
func Summary(rows []Row, elapsed time.Duration) string {
	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Action]++
	}
	var parts []string
	for _, action := range []string{"cloned", "updated", "recloned", "skipped", "failed"} {
		if n := counts[action]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, action))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}
	return fmt.Sprintf("%s in %s", strings.Join(parts, ", "), elapsed.Round(time.Second))
}

// Table renders the per-repository detail table for mail/log bodies.
func Table(rows []Row) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"repository", "action", "detail", "duration"})
	for _, r := range rows {
		detail := r.Detail
		if r.Err != nil {
			detail = r.Err.Error()
		}
		t.AppendRow(table.Row{r.Path, r.Action, detail, r.Duration.Round(time.Millisecond)})
	}
	t.SetStyle(table.StyleLight)
	return t.Render()
}
