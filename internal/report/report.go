// Package report renders harness outcomes for the terminal.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"visreg/internal/suite"
)

var (
	passStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Value renders a metric value, keeping +Inf readable.
func Value(v float64) string {
	if math.IsInf(v, 1) {
		return "+inf"
	}
	return fmt.Sprintf("%.6f", v)
}

// Comparison renders the metric result line for a test, mirroring what gets
// logged: value first, threshold context when one is set.
func Comparison(test, metric string, value float64, threshold *float64, direction string) string {
	line := fmt.Sprintf("%s for %s: %s", metric, test, Value(value))
	if threshold != nil {
		line += dimStyle.Render(fmt.Sprintf(" (threshold %g, direction %s)", *threshold, direction))
	}
	return line
}

// Verdict renders a PASS/FAIL marker.
func Verdict(passed bool) string {
	if passed {
		return passStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}

// GoldenUpdated renders the update-golden confirmation.
func GoldenUpdated(test, path string) string {
	return fmt.Sprintf("%s updated golden for %s at %s", passStyle.Render("OK"), test, path)
}

// SuiteSummary renders a per-test result table plus a totals line.
func SuiteSummary(results []suite.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("suite results") + "\n")

	passed := 0
	for _, res := range results {
		marker := Verdict(res.Passed)
		if res.Passed {
			passed++
		}
		b.WriteString(fmt.Sprintf("  %s  %-24s %8dms", marker, res.Name, res.DurationMs))
		if res.Error != "" {
			b.WriteString("  " + dimStyle.Render(res.Error))
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("%d/%d passed\n", passed, len(results)))
	return b.String()
}
