// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-aper.
//
// go-aper is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OutputFormat defines the output format type.
type OutputFormat string

const (
	FormatText  OutputFormat = "text"
	FormatJSON  OutputFormat = "json"
	FormatTable OutputFormat = "table"
)

// OperationResult holds the result of an operation.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// FormatOperationResult formats an operation result in the specified format.
func FormatOperationResult(result *OperationResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(result)
	case FormatTable:
		return formatResultTable(result)
	default:
		return formatResultText(result)
	}
}

// FormatError formats an error message in the specified format.
func FormatError(err error, format OutputFormat) string {
	result := &OperationResult{
		Success: false,
		Error:   err.Error(),
	}
	return FormatOperationResult(result, format)
}

// FormatMergeResult formats the outcome of a merge or check run.
func FormatMergeResult(result *MergeResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(result)
	case FormatTable:
		return formatMergeTable(result)
	default:
		return formatMergeText(result)
	}
}

// FormatExportResult formats the outcome of an export.
func FormatExportResult(result *ExportResult, format OutputFormat) string {
	switch format {
	case FormatJSON:
		return formatJSON(result)
	default:
		return FormatOperationResult(&OperationResult{
			Success: true,
			Message: fmt.Sprintf("Exported %d address(es) as %s map to '%s'", result.Entries, result.Format, result.Output),
		}, format)
	}
}

func formatResultText(result *OperationResult) string {
	if result.Success {
		if result.Message != "" {
			return result.Message + "\n"
		}
		return "Operation completed successfully\n"
	}
	return fmt.Sprintf("Error: %s\n", result.Error)
}

func formatResultTable(result *OperationResult) string {
	status, text := "SUCCESS", result.Message
	if !result.Success {
		status, text = "FAILED", result.Error
	}

	output := "┌────────────────────────────────────────────────────────┐\n"
	output += "│ Operation Result                                       │\n"
	output += "├────────────────────────────────────────────────────────┤\n"
	output += fmt.Sprintf("│ Status: %-47s │\n", status)
	if text != "" {
		for _, line := range wrapText(text, 47) {
			output += fmt.Sprintf("│ %-54s │\n", line)
		}
	}
	output += "└────────────────────────────────────────────────────────┘\n"
	return output
}

func formatMergeText(r *MergeResult) string {
	var b strings.Builder
	verb := "Merged"
	if r.DryRun {
		verb = "Checked"
	}
	fmt.Fprintf(&b, "%s %d record(s) from %s into %s list '%s'\n", verb, r.Batch.Records, r.Source, r.List, r.Path)
	fmt.Fprintf(&b, "  Inserted: %d\n", r.Batch.Inserted)
	fmt.Fprintf(&b, "  Updated: %d\n", r.Batch.Updated)
	if r.List == "reply" {
		fmt.Fprintf(&b, "  Reactivated: %d\n", r.Batch.Reactivated)
	}
	fmt.Fprintf(&b, "  Unchanged: %d\n", r.Batch.Unchanged)
	fmt.Fprintf(&b, "  Live Records: %d of %d\n", r.Live, r.Records)
	if r.DryRun {
		b.WriteString("  Database not written (check only)\n")
	}
	fmt.Fprintf(&b, "  Run ID: %s\n", r.RunID)
	return b.String()
}

func formatMergeTable(r *MergeResult) string {
	rows := [][2]string{
		{"Run ID", r.RunID},
		{"List", r.List},
		{"Database", r.Path},
		{"Source", r.Source},
		{"Batch Records", fmt.Sprint(r.Batch.Records)},
		{"Inserted", fmt.Sprint(r.Batch.Inserted)},
		{"Updated", fmt.Sprint(r.Batch.Updated)},
		{"Reactivated", fmt.Sprint(r.Batch.Reactivated)},
		{"Unchanged", fmt.Sprint(r.Batch.Unchanged)},
		{"Live Records", fmt.Sprintf("%d of %d", r.Live, r.Records)},
		{"Written", fmt.Sprint(r.Written)},
	}

	output := "┌──────────────────┬────────────────────────────────────────┐\n"
	output += "│ Merge            │ Value                                  │\n"
	output += "├──────────────────┼────────────────────────────────────────┤\n"
	for _, row := range rows {
		output += fmt.Sprintf("│ %-16s │ %-38s │\n", row[0], truncate(row[1], 38))
	}
	output += "└──────────────────┴────────────────────────────────────────┘\n"
	return output
}

func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": \"failed to marshal JSON: %s\"}\n", err)
	}
	return string(data) + "\n"
}

// wrapText wraps text to fit within maxWidth characters.
func wrapText(text string, maxWidth int) []string {
	if len(text) <= maxWidth {
		return []string{text}
	}

	// Check if text has no spaces - need to hard wrap
	if !strings.Contains(text, " ") {
		var lines []string
		for len(text) > maxWidth {
			lines = append(lines, text[:maxWidth])
			text = text[maxWidth:]
		}
		if len(text) > 0 {
			lines = append(lines, text)
		}
		return lines
	}

	var lines []string
	var currentLine string
	for _, word := range strings.Fields(text) {
		if len(currentLine) == 0 {
			currentLine = word
		} else if len(currentLine)+1+len(word) <= maxWidth {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if len(currentLine) > 0 {
		lines = append(lines, currentLine)
	}
	return lines
}
