// Package output renders aggregated host outcomes in the three
// supported modes: json, line-oriented text, and a human table.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/trentearl/mssh/internal/executor"
	"github.com/trentearl/mssh/internal/hostspec"
)

// Mode selects a render mode.
type Mode string

const (
	ModeJSON  Mode = "json"
	ModeText  Mode = "text"
	ModeTable Mode = "table"
)

// ParseMode validates a mode name from a flag or config value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeJSON, ModeText, ModeTable:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown output mode %q (expected json, text or table)", s)
	}
}

// Record is the compact per-command view shared by the json and table
// modes: one record per outcome, successful or not. Failed outcomes
// carry the error text and a zero duration.
type Record struct {
	RemoteHost hostspec.RemoteHost `json:"remote_host"`
	Out        string              `json:"out"`
	Duration   uint64              `json:"duration"`
	Success    bool                `json:"success"`
}

// Records flattens aggregated host outcomes into compact records,
// preserving their order.
func Records(all []executor.HostOutcome) []Record {
	var records []Record
	for _, ho := range all {
		for _, o := range ho.Outcomes {
			if o.Ok() {
				records = append(records, Record{
					RemoteHost: ho.Host,
					Out:        o.Result.Stdout,
					Duration:   o.Result.DurationMillis,
					Success:    true,
				})
			} else {
				records = append(records, Record{
					RemoteHost: ho.Host,
					Out:        o.Err.Error(),
					Success:    false,
				})
			}
		}
	}
	return records
}

// Render formats aggregated outcomes in the given mode.
func Render(mode Mode, all []executor.HostOutcome) (string, error) {
	switch mode {
	case ModeJSON:
		return renderJSON(all)
	case ModeText:
		return renderText(all), nil
	case ModeTable:
		return renderTable(all), nil
	default:
		return "", fmt.Errorf("unknown output mode %q", mode)
	}
}

func renderJSON(all []executor.HostOutcome) (string, error) {
	records := Records(all)
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// renderText writes one line per outcome with a right-aligned host
// label.
func renderText(all []executor.HostOutcome) string {
	var b strings.Builder
	for _, ho := range all {
		for _, o := range ho.Outcomes {
			if o.Ok() {
				fmt.Fprintf(&b, "%15s: %s\n", ho.Host.Host, o.Result.Stdout)
			} else {
				fmt.Fprintf(&b, "%15s: %s\n", ho.Host.Host, o.Err.Error())
			}
		}
	}
	return b.String()
}

func renderTable(all []executor.HostOutcome) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("HOST", "OUTPUT", "DURATION", "OK")

	for _, r := range Records(all) {
		mark := "❌"
		if r.Success {
			mark = "✅"
		}
		t.Row(r.RemoteHost.String(), r.Out, fmt.Sprintf("%dms", r.Duration), mark)
	}
	return t.String()
}
