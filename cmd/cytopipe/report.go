package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"cytopipe/internal/pipeline"
	"cytopipe/internal/preflight"
	"cytopipe/internal/stage"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const detailWidth = 60

// printReport renders the per-(sample, stage) outcomes plus the aggregate
// summary line.
func printReport(w io.Writer, report *pipeline.Report) {
	colorize := shouldColorize(w)

	rows := make([][]string, 0, len(report.Results))
	for _, result := range report.Results {
		detail := ""
		if result.Err != nil {
			detail = truncateDetail(result.Err.Error())
		}
		rows = append(rows, []string{
			result.SampleID,
			result.Stage,
			colorizeOutcome(result.Outcome, colorize),
			detail,
		})
	}
	fmt.Fprintln(w, renderTable([]string{"SAMPLE", "STAGE", "OUTCOME", "DETAIL"}, rows))
	fmt.Fprintln(w, report.Summary())
}

// printChecks renders preflight results one line per check.
func printChecks(w io.Writer, checks []preflight.Result) {
	colorize := shouldColorize(w)
	for _, check := range checks {
		status := "OK"
		color := ansiGreen
		if !check.Passed {
			status = "FAIL"
			color = ansiRed
		}
		line := fmt.Sprintf("  %-18s [%s] %s", check.Name+":", status, check.Detail)
		if colorize {
			line = color + line + ansiReset
		}
		fmt.Fprintln(w, line)
	}
}

func colorizeOutcome(outcome stage.Outcome, colorize bool) string {
	if !colorize {
		return string(outcome)
	}
	color := ""
	switch outcome {
	case stage.OutcomeDone:
		color = ansiGreen
	case stage.OutcomeSkipped:
		color = ansiBlue
	case stage.OutcomeBlocked:
		color = ansiYellow
	case stage.OutcomeFailed:
		color = ansiRed
	}
	if color == "" {
		return string(outcome)
	}
	return color + string(outcome) + ansiReset
}

func truncateDetail(detail string) string {
	if len(detail) <= detailWidth {
		return detail
	}
	return detail[:detailWidth-3] + "..."
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
