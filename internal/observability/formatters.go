package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/EVODENUBY/DYPSE-sub000/internal/ingest"
)

// boxWidth is the width of formatted output boxes
const boxWidth = 60

// Printer writes human-readable summaries for CLI commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRunStats outputs the outcome of one ingestion run.
func (p *Printer) PrintRunStats(stats *ingest.RunStats) {
	if stats == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Source:    %s\n", stats.Source)
	fmt.Fprintf(&sb, "Started:   %s\n", stats.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Duration:  %s\n", stats.FinishedAt.Sub(stats.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&sb, "Pages:     %d\n", stats.Pages)
	fmt.Fprintf(&sb, "Parsed:    %d (skipped %d)\n", stats.Parsed, stats.Skipped)
	fmt.Fprintf(&sb, "Created:   %d\n", stats.Created)
	fmt.Fprintf(&sb, "Updated:   %d\n", stats.Updated)
	fmt.Fprintf(&sb, "Failed:    %d", stats.Failed)
	if stats.DetailFailures > 0 {
		fmt.Fprintf(&sb, "\nDetails:   %d not fetched", stats.DetailFailures)
	}
	if stats.Error != "" {
		fmt.Fprintf(&sb, "\nError:     %s", stats.Error)
	}

	title := "INGESTION RUN COMPLETE"
	if stats.Error != "" {
		title = "INGESTION RUN FAILED"
	}
	p.printBox(title, sb.String())
}
