package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gavel/internal/hearings"
	"gavel/internal/ipc"
)

func hearingListHeaders() []string {
	return []string{"ID", "Committee", "Title", "Date", "Stage", "Attempts", "Updated"}
}

func hearingListAlignments() []columnAlignment {
	return []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
}

func buildHearingListRows(items []ipc.HearingSummary) [][]string {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]ipc.HearingSummary, len(items))
	copy(sorted, items)

	sort.Slice(sorted, func(i, j int) bool {
		ti := parseSummaryTime(sorted[i].UpdatedAt)
		tj := parseSummaryTime(sorted[j].UpdatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, item := range sorted {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "Untitled"
		}
		stage := formatStageLabel(item.Stage)
		if item.Stalled {
			stage += " (stalled)"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.ID),
			item.CommitteeCode,
			title,
			item.HearingDate,
			stage,
			fmt.Sprintf("%d", item.AttemptCount),
			formatDisplayTime(item.UpdatedAt),
		})
	}
	return rows
}

// buildStageCountRows lists every lifecycle stage in processing order so the
// table reads as a pipeline, with a stalled row appended when relevant.
func buildStageCountRows(counts map[string]int, stalled int) [][]string {
	total := 0
	for _, count := range counts {
		total += count
	}
	if total == 0 {
		return nil
	}

	rows := make([][]string, 0, len(counts)+1)
	for _, stage := range hearings.AllStages() {
		rows = append(rows, []string{formatStageLabel(string(stage)), fmt.Sprintf("%d", counts[string(stage)])})
	}
	if stalled > 0 {
		rows = append(rows, []string{"Stalled", fmt.Sprintf("%d", stalled)})
	}
	return rows
}

func buildAttemptRows(attempts []ipc.AttemptSummary) [][]string {
	rows := make([][]string, 0, len(attempts))
	for _, attempt := range attempts {
		ended := formatDisplayTime(attempt.EndedAt)
		outcome := attempt.Outcome
		if attempt.EndedAt == "" {
			ended = "-"
			outcome = "running"
		}
		errText := strings.TrimSpace(attempt.ErrorMessage)
		if attempt.ErrorKind != "" && errText == "" {
			errText = attempt.ErrorKind
		}
		rows = append(rows, []string{
			formatStageLabel(attempt.Stage),
			formatDisplayTime(attempt.StartedAt),
			ended,
			outcome,
			errText,
		})
	}
	return rows
}

func printHearingDetail(out io.Writer, resp *ipc.DescribeResponse) {
	h := resp.Hearing

	stage := formatStageLabel(h.Stage)
	if h.Stalled {
		stage += " (stalled)"
	}

	fmt.Fprintf(out, "Hearing %d\n", h.ID)
	printDetailLine(out, "Committee", h.CommitteeCode)
	printDetailLine(out, "Title", h.Title)
	printDetailLine(out, "Date", h.HearingDate)
	printDetailLine(out, "Stage", stage)
	printDetailLine(out, "Source", h.SourceURL)
	if h.ManifestURL != "" {
		printDetailLine(out, "Manifest", fmt.Sprintf("%s (%s)", h.ManifestURL, h.ManifestKind))
	}
	if h.AudioPath != "" {
		printDetailLine(out, "Audio", h.AudioPath)
		printDetailLine(out, "Fingerprint", formatFingerprint(h.AudioFingerprint))
	}
	if h.TranscriptPath != "" {
		printDetailLine(out, "Transcript", h.TranscriptPath)
	}
	if h.AttemptCount > 0 {
		printDetailLine(out, "Failed attempts", fmt.Sprintf("%d", h.AttemptCount))
	}
	if h.NextAttemptAt != "" {
		printDetailLine(out, "Next attempt", formatDisplayTime(h.NextAttemptAt))
	}
	if h.ErrorMessage != "" {
		printDetailLine(out, "Last error", h.ErrorMessage)
	}
	if h.LockOwner != "" {
		printDetailLine(out, "Lease", fmt.Sprintf("%s (expires %s)", h.LockOwner, formatDisplayTime(h.LockExpiresAt)))
	}
	printDetailLine(out, "In flight", yesNo(resp.InFlight))
	if last := resp.LastAttempt; last != nil {
		summary := fmt.Sprintf("%s %s at %s", formatStageLabel(last.Stage), last.Outcome, formatDisplayTime(last.StartedAt))
		if last.ErrorMessage != "" {
			summary += " (" + last.ErrorMessage + ")"
		}
		printDetailLine(out, "Last attempt", summary)
	}
	for _, warning := range metadataWarnings(h.Metadata) {
		printDetailLine(out, "Warning", warning)
	}
	printDetailLine(out, "Created", formatDisplayTime(h.CreatedAt))
	printDetailLine(out, "Updated", formatDisplayTime(h.UpdatedAt))
}

func printDetailLine(out io.Writer, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(out, "  %-16s %s\n", label+":", value)
}

func metadataWarnings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var meta hearings.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	return meta.Warnings
}

func formatStageLabel(stage string) string {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return ""
	}
	return strings.ToUpper(stage[:1]) + strings.ToLower(stage[1:])
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t := parseSummaryTime(value); !t.IsZero() {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func parseSummaryTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatFingerprint(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if len(value) > 12 {
		return value[:12]
	}
	return value
}
