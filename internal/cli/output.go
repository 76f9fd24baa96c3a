package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// PrintHeader prints the run banner
func PrintHeader(w io.Writer, sessionID string, additive bool) {
	mode := "full"
	if additive {
		mode = "additive"
	}
	fmt.Fprintf(w, "reconciler: session %s (%s run)\n\n", sessionID, mode)
}

// PrintRunSummary prints extraction reports, per-church totals and the
// results that still need attention.
func PrintRunSummary(w io.Writer, out *service.RunOutcome) {
	for _, f := range out.Extraction {
		fmt.Fprintf(w, "  %-30s %-10s rows=%d method=%s\n", f.FileName, f.Status, f.Rows, f.Method)
		for _, skipped := range f.Skipped {
			fmt.Fprintf(w, "      skipped row %d: %s\n", skipped.Row, skipped.Reason)
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))

	if !out.Applied {
		fmt.Fprintln(w, "Statement could not be read; previous results kept.")
	}
	for _, req := range out.ModelRequests {
		fingerprint := ""
		if req.Context != nil {
			fingerprint = req.Context.Fingerprint
		}
		fmt.Fprintf(w, "Needs a file model: %s (fingerprint %s)\n", req.FileName, fingerprint)
	}

	for _, unit := range out.Summary.Units {
		fmt.Fprintf(w, "%-24s income=%s identified=%d pending=%d divergent=%d\n",
			unit.Church.Name, unit.Income.StringFixed(2), unit.Identified, unit.Pending, unit.Divergent)
	}
	u := out.Summary.Unassigned
	fmt.Fprintf(w, "%-24s income=%s unidentified=%d\n", "Unassigned", u.Income.StringFixed(2), u.Unidentified)

	var attention []models.MatchResult
	for _, r := range out.Results {
		if r.Status == models.StatusDivergent || (r.Status == models.StatusUnidentified && r.Transaction.IsIncome()) {
			attention = append(attention, r)
		}
	}
	if len(attention) > 0 {
		fmt.Fprintln(w, "\nNeeds review:")
		for _, r := range attention {
			fmt.Fprintf(w, "  [%s] %s %s %s\n", r.Status.Label(), r.Transaction.Date.Format("02/01/2006"),
				r.Transaction.Amount.StringFixed(2), r.Transaction.Description)
		}
	}

	fmt.Fprintf(w, "\nSummary: Results=%d Income=%s Expense=%s Pending=%s\n",
		out.Summary.Total, out.Summary.Income.StringFixed(2), out.Summary.Expense.StringFixed(2),
		out.Summary.PendingTotal.StringFixed(2))
}

// PrintModels lists file models one per line
func PrintModels(w io.Writer, list []models.FileModel) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No file models.")
		return
	}
	for _, m := range list {
		active := ""
		if m.IsActive {
			active = " (active)"
		}
		scope := "owner:" + m.OwnerID
		if m.Global {
			scope = "global"
		}
		fmt.Fprintf(w, "%s  %s v%d%s  %s  %s\n", m.ID, m.Name, m.Version, active, m.Status, scope)
	}
}

// PrintJSON writes v as indented JSON
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
