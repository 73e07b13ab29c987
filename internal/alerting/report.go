// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package alerting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"grimm.is/shellwatch/internal/event"
)

// reportRecent is the number of alerts listed in a report.
const reportRecent = 10

// Inventory holds the figures a report takes from other components.
type Inventory struct {
	// Tracked is the number of tracker entries.
	Tracked int
	// Suspicious lists the suspicious connections from the last scan, one
	// rendered line each.
	Suspicious []string
}

// Report writes a text summary: totals by type and severity, the number of
// tracked connections and processes, suspicious connections from the last
// scan and the most recent alerts.
func (e *Engine) Report(w io.Writer, inv Inventory) error {
	s := e.Summary()
	recent := e.History(reportRecent)
	now := e.clock.Now()

	var b strings.Builder
	b.WriteString("Reverse Shell Detection Report\n")
	b.WriteString("==============================\n")
	fmt.Fprintf(&b, "Total Events Detected: %d\n", s.Total)
	fmt.Fprintf(&b, "Tracked Connections:   %d\n", inv.Tracked)
	fmt.Fprintf(&b, "Suspicious Connections: %d\n", len(inv.Suspicious))
	fmt.Fprintf(&b, "Since:                 %s\n", s.Since.Format(time.RFC3339))

	b.WriteString("\nBy Type:\n")
	for _, t := range event.Types {
		fmt.Fprintf(&b, "  %-22s %d\n", t.String(), s.ByType[t.String()])
	}

	b.WriteString("\nBy Severity:\n")
	for _, sev := range []event.Severity{event.SeverityCritical, event.SeverityHigh, event.SeverityMedium} {
		fmt.Fprintf(&b, "  %-22s %d\n", sev.String(), s.BySeverity[sev.String()])
	}

	if len(inv.Suspicious) > 0 {
		b.WriteString("\nSuspicious Connections:\n")
		for i, line := range inv.Suspicious {
			if i == reportRecent {
				fmt.Fprintf(&b, "  ... %d more\n", len(inv.Suspicious)-reportRecent)
				break
			}
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	b.WriteString("\nRecent Events:\n")
	if len(recent) == 0 {
		b.WriteString("  (none)\n")
	}
	for i := len(recent) - 1; i >= 0; i-- {
		a := recent[i]
		age := now.Sub(a.Timestamp).Truncate(time.Second)
		fmt.Fprintf(&b, "  [%s ago] %s - %s\n", age, strings.ToUpper(a.Severity.String()), a.Message)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
