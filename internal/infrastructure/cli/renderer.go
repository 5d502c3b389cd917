package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

// RenderValidation prints a verdict in a friendly, ASCII-only format.
func RenderValidation(out io.Writer, result domain.ValidationResult) {
	verdict := "SAFE"
	if !result.IsSafe() {
		verdict = "NOT SAFE"
	}
	fmt.Fprintf(out, "Threat level: %s (%s)\n", strings.ToUpper(result.ThreatLevel.String()), verdict)
	if len(result.Warnings) > 0 {
		fmt.Fprintln(out, "Warnings:")
		for _, warning := range result.Warnings {
			fmt.Fprintf(out, " - %s\n", warning)
		}
	}
	if len(result.BlockedPatterns) > 0 {
		fmt.Fprintln(out, "Matched patterns:")
		for _, pattern := range result.BlockedPatterns {
			fmt.Fprintf(out, " - %s\n", pattern)
		}
	}
}

// RenderExecution prints the outcome of a single command or script.
func RenderExecution(out io.Writer, resp domain.ExecutionResponse) {
	RenderValidation(out, resp.Validation)
	if resp.Result == nil {
		fmt.Fprintln(out, "\nCommand was not executed.")
		return
	}
	res := resp.Result
	fmt.Fprintln(out)
	if res.Stdout != "" {
		fmt.Fprintln(out, "stdout:")
		fmt.Fprintln(out, strings.TrimRight(res.Stdout, "\n"))
	}
	if res.Stderr != "" {
		fmt.Fprintln(out, "stderr:")
		fmt.Fprintln(out, strings.TrimRight(res.Stderr, "\n"))
	}
	fmt.Fprintln(out, resultLine(*res))
}

// RenderReport prints the per-step summary of an automation run.
func RenderReport(out io.Writer, report domain.AutomationReport) {
	fmt.Fprintf(out, "\nRun %s: ", report.RunID)
	succeeded := 0
	var total time.Duration
	for _, res := range report.Results {
		if res.Success {
			succeeded++
		}
		total += res.Duration
	}
	fmt.Fprintf(out, "%d/%d steps succeeded in %s\n", succeeded, len(report.Results), roundDuration(total))
	if report.Description != "" {
		fmt.Fprintf(out, "  %s\n", report.Description)
	}
	for _, res := range report.Results {
		fmt.Fprintf(out, "  %d. %s\n     %s\n", res.Step+1, firstLine(res.Command), resultLine(res))
	}
}

func resultLine(res domain.ExecutionResult) string {
	var sb strings.Builder
	switch {
	case res.Skipped:
		sb.WriteString("skipped")
	case res.TimedOut:
		fmt.Fprintf(&sb, "timed out after %s", roundDuration(res.Duration))
	case res.Success:
		fmt.Fprintf(&sb, "ok in %s", roundDuration(res.Duration))
	default:
		fmt.Fprintf(&sb, "failed (exit %d) in %s", res.ExitCode, roundDuration(res.Duration))
	}
	if size := len(res.Stdout) + len(res.Stderr); size > 0 {
		fmt.Fprintf(&sb, ", %s output", humanize.Bytes(uint64(size)))
	}
	if res.Truncated {
		sb.WriteString(" (truncated)")
	}
	if !res.Success && res.Error != "" && !res.Skipped && !res.TimedOut {
		fmt.Fprintf(&sb, ": %s", res.Error)
	}
	return sb.String()
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(10 * time.Millisecond)
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i] + " ..."
	}
	return text
}
