package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/engine"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	doubleLine = "═══════════════════════════════════════════════════════════"
	singleLine = "───────────────────────────────────────────────────────────"
)

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// printTableHeader prints a table header followed by a separator sized to the columns
func printTableHeader(w io.Writer, columns []string, widths []int) {
	printTableRow(w, columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	for i := 0; i < totalWidth; i++ {
		fmt.Fprint(w, "─")
	}
	fmt.Fprintln(w)
}

// printTableRow prints a table row
func printTableRow(w io.Writer, values []string, widths []int) {
	for i, val := range values {
		fmt.Fprintf(w, "%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)
}

func statusIcon(s contracts.RunStatus) string {
	switch s {
	case contracts.StatusReady:
		return "✅"
	case contracts.StatusPendingReview:
		return "⚠️ "
	default:
		return "❌"
	}
}

// PrintOutcomeSummary prints the gate, the intents and the non-info diagnostics of one run
func PrintOutcomeSummary(w io.Writer, out *contracts.Outcome) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  Rebalance %s\n", out.RunID)
	fmt.Fprintln(w, singleLine)
	fmt.Fprintf(w, "  Status    : %s %s\n", statusIcon(out.Status), out.Status)
	if len(out.Gate.ReasonCodes) > 0 {
		fmt.Fprintf(w, "  Reasons   : %v\n", out.Gate.ReasonCodes)
	}
	if out.Before != nil {
		fmt.Fprintf(w, "  Before    : %s %s\n", out.Before.TotalValue.StringFixed(2), out.Before.BaseCurrency)
	}
	if out.After != nil {
		fmt.Fprintf(w, "  After     : %s %s\n", out.After.TotalValue.StringFixed(2), out.After.BaseCurrency)
	}
	fmt.Fprintln(w, doubleLine)

	if len(out.Intents) > 0 {
		fmt.Fprintln(w)
		cols := []string{"ID", "Kind", "Instrument", "Side", "Quantity", "Notional", "Dep"}
		widths := []int{8, 14, 12, 4, 14, 16, 10}
		printTableHeader(w, cols, widths)
		for _, in := range out.Intents {
			printTableRow(w, intentRow(in), widths)
		}
	}

	var shown int
	for _, d := range out.Diagnostics {
		if d.Severity == contracts.SeverityInfo {
			continue
		}
		if shown == 0 {
			fmt.Fprintln(w)
		}
		shown++
		fmt.Fprintf(w, "   • [%s] %s %s: %s\n", d.Severity, d.Stage.ShortName(), d.Code, d.Message)
	}
	fmt.Fprintln(w)
}

func intentRow(in contracts.Intent) []string {
	deps := ""
	for i, d := range in.DependsOn {
		if i > 0 {
			deps += ","
		}
		deps += strconv.Itoa(d)
	}

	switch in.Kind {
	case contracts.IntentFXSpot:
		return []string{in.ID, string(in.Kind), in.SellCurrency + "→" + in.BuyCurrency, "",
			in.SellAmount.String(), in.BuyAmount.String() + " " + in.BuyCurrency, deps}
	case contracts.IntentCashFlow:
		return []string{in.ID, string(in.Kind), "", "", "",
			in.Notional.String() + " " + in.Currency, deps}
	default:
		return []string{in.ID, string(in.Kind), in.InstrumentID, string(in.Side),
			in.Quantity.String(), in.Notional.String() + " " + in.Currency, deps}
	}
}

// PrintBatchSummary prints one row per scenario in name order
func PrintBatchSummary(w io.Writer, results []engine.BatchResult) {
	fmt.Fprintln(w)
	cols := []string{"Scenario", "Status", "Intents", "Reasons"}
	widths := []int{20, 16, 8, 30}
	printTableHeader(w, cols, widths)

	for _, r := range results {
		switch {
		case r.Outcome != nil:
			printTableRow(w, []string{
				r.Name,
				string(r.Outcome.Status),
				strconv.Itoa(len(r.Outcome.Intents)),
				fmt.Sprintf("%v", r.Outcome.Gate.ReasonCodes),
			}, widths)
		default:
			printTableRow(w, []string{r.Name, "ERROR", "-", r.Error}, widths)
		}
	}
	fmt.Fprintln(w)
}
