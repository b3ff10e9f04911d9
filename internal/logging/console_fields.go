package logging

import (
	"log/slog"
	"strings"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldDecisionType,
	"hearing_title",
	"committee",
	"hearing_date",
	"status",
	FieldProgressStage,
	FieldProgressPercent,
	FieldProgressMessage,
	FieldProgressETA,
	"command",
	"error_message",
	FieldErrorCode,
	FieldErrorHint,
	FieldErrorDetailPath,
	"manifest_kind",
	"candidate_count",
	"confidence",
	"audio_duration",
	"audio_codec",
	"sample_rate",
	"channels",
	"lead_trim",
	"trail_trim",
	"all_silent",
	"transcript_language",
	"segment_count",
	"labeled_segments",
	"unknown_segments",
	"speaker_count",
	"auto_approved",
	"published_files",
	// Stage summary fields
	"stage_duration",
	"probe_duration",
	"capture_duration",
	"transcribe_duration",
	"audio_size_bytes",
	"upload_bytes",
	"transcript_bytes",
	"attempt",
	"max_attempts",
	"backoff",
	"decision_result",
	"decision_reason",
	"reason",
}

// selectInfoFields returns formatted info-level fields and a count of hidden
// entries. includeDebug controls whether debug-only keys are allowed.
func selectInfoFields(attrs []kv, includeDebug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	formatted := make([]string, len(attrs))
	formattedSet := make([]bool, len(attrs))
	ensureValue := func(idx int) string {
		if !formattedSet[idx] {
			formatted[idx] = formatValueForKeyWithAttrs(attrs[idx].key, attrs[idx].value, attrs)
			formattedSet[idx] = true
		}
		return formatted[idx]
	}
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if used[idx] || attr.key != key {
				continue
			}
			used[idx] = true
			if skipInfoKey(attr.key) {
				break
			}
			if !includeDebug && isDebugOnlyKey(attr.key) {
				hidden++
				break
			}
			val := ensureValue(idx)
			if !includeDebug && shouldHideInfoValue(attr.key, val) {
				hidden++
				break
			}
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
			break
		}
	}

	for idx, attr := range attrs {
		if used[idx] {
			continue
		}
		used[idx] = true
		if skipInfoKey(attr.key) {
			continue
		}
		if !includeDebug && isDebugOnlyKey(attr.key) {
			hidden++
			continue
		}
		val := ensureValue(idx)
		if !includeDebug && shouldHideInfoValue(attr.key, val) {
			hidden++
			continue
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: val})
	}

	return result, hidden
}

// formatValueForKeyWithAttrs applies smart formatting based on the key name.
func formatValueForKeyWithAttrs(key string, v slog.Value, attrs []kv) string {
	v = v.Resolve()

	if isByteSizeKey(key) && (v.Kind() == slog.KindInt64 || v.Kind() == slog.KindUint64) {
		var bytes int64
		if v.Kind() == slog.KindInt64 {
			bytes = v.Int64()
		} else {
			bytes = int64(v.Uint64())
		}
		return formatBytes(bytes)
	}

	if isDurationKey(key) && v.Kind() == slog.KindDuration {
		return formatDurationHuman(v.Duration())
	}

	if isPercentKey(key) && v.Kind() == slog.KindFloat64 {
		return formatPercent(v.Float64())
	}

	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}

	value := formatValue(v)
	if key == "error" || key == "error_message" {
		detailPath := attrValue(attrs, FieldErrorDetailPath)
		value = truncateErrorValue(value, detailPath)
	}
	return value
}

// isByteSizeKey returns true if the key represents a byte size.
func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") ||
		strings.HasSuffix(key, "_size") ||
		key == "size"
}

// isDurationKey returns true if the key represents a duration.
func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_elapsed") ||
		strings.HasSuffix(key, "_latency") ||
		strings.HasSuffix(key, "_trim") ||
		key == "elapsed" ||
		key == "duration" ||
		key == "backoff"
}

// isPercentKey returns true if the key represents a percentage.
func isPercentKey(key string) bool {
	return strings.HasSuffix(key, "_percent") ||
		key == FieldProgressPercent
}

func truncateErrorValue(value, detailPath string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	if strings.TrimSpace(detailPath) != "" {
		if !strings.Contains(value, "error_detail_path") && !strings.Contains(value, "detail_path") {
			value += " (see error_detail_path)"
		}
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldHearingID, FieldStage, FieldLane, "component":
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	if key == "" {
		return true
	}
	switch key {
	case FieldCorrelationID,
		"fingerprint",
		"user_agent",
		"lock_owner",
		"lease_owner",
		"page_bytes",
		"sniff_bytes",
		"roster_entries",
		"segment_index",
		"window_millis",
		"rms_floor_db":
		return true
	}
	if strings.Contains(key, "correlation") {
		return true
	}
	if strings.HasSuffix(key, "_id") && key != FieldHearingID {
		return true
	}
	if strings.HasPrefix(key, "ffprobe.") {
		return true
	}
	if strings.Contains(key, "_path") || strings.Contains(key, "_dir") {
		return true
	}
	if strings.Contains(key, "_url") || strings.Contains(key, "fingerprint") {
		return true
	}
	return false
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error_message", "error", "command", "reason":
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldDecisionType:
		return "Decision"
	case FieldErrorCode:
		return "Error Code"
	case FieldErrorHint:
		return "Hint"
	case FieldErrorDetailPath:
		return "Error Detail"
	case FieldHearingID:
		return "Hearing"
	case FieldStage:
		return "Stage"
	case "hearing_title":
		return "Title"
	case "committee":
		return "Committee"
	case "hearing_date":
		return "Date"
	case "status":
		return "Status"
	case "progress_stage":
		return "Progress Stage"
	case "progress_message":
		return "Progress"
	case "manifest_kind":
		return "Source"
	case "candidate_count":
		return "Candidates"
	case "confidence":
		return "Confidence"
	case "audio_duration":
		return "Audio Length"
	case "audio_codec":
		return "Codec"
	case "sample_rate":
		return "Sample Rate"
	case "channels":
		return "Channels"
	case "lead_trim":
		return "Lead Trim"
	case "trail_trim":
		return "Trail Trim"
	case "all_silent":
		return "All Silent"
	case "transcript_language":
		return "Language"
	case "segment_count":
		return "Segments"
	case "labeled_segments":
		return "Labeled"
	case "unknown_segments":
		return "Unlabeled"
	case "speaker_count":
		return "Speakers"
	case "auto_approved":
		return "Auto Approved"
	case "published_files":
		return "Files"
	// Stage summary fields - concise labels
	case "stage_duration":
		return "Duration"
	case "probe_duration":
		return "Probe Time"
	case "capture_duration":
		return "Capture Time"
	case "transcribe_duration":
		return "Transcription Time"
	case "audio_size_bytes":
		return "Audio Size"
	case "upload_bytes":
		return "Upload"
	case "transcript_bytes":
		return "Transcript Size"
	case "attempt":
		return "Attempt"
	case "max_attempts":
		return "Attempt Limit"
	case "backoff":
		return "Backoff"
	case "decision_result":
		return "Result"
	case "decision_reason":
		return "Reason"
	case "reason":
		return "Reason"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
	}
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	switch len(value) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(value)
	default:
		lower := strings.ToLower(value)
		return strings.ToUpper(lower[:1]) + lower[1:]
	}
}

func infoSummaryKey(component, hearingID string, attrs []kv) string {
	hearingID = strings.TrimSpace(hearingID)
	if hearingID == "" {
		if title := attrValue(attrs, "hearing_title"); title != "" {
			hearingID = "title:" + title
		} else if component != "" {
			hearingID = component
		}
	}
	if hearingID == "" {
		return ""
	}
	return hearingID
}

func attrValue(attrs []kv, key string) string {
	for _, kv := range attrs {
		if kv.key == key {
			return attrString(kv.value)
		}
	}
	return ""
}
