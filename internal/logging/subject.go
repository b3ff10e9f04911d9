package logging

import "strings"

// FormatSubject builds the lane/hearing/stage subject string used in console output.
func FormatSubject(lane, hearingID, stage string) string {
	lane = strings.TrimSpace(lane)
	hearingID = strings.TrimSpace(hearingID)
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 3)
	if lane != "" {
		var formattedLane string
		if len(lane) > 1 {
			formattedLane = strings.ToUpper(lane[:1]) + strings.ToLower(lane[1:])
		} else {
			formattedLane = strings.ToUpper(lane)
		}
		parts = append(parts, formattedLane)
	}
	switch {
	case hearingID != "" && stage != "":
		parts = append(parts, "Hearing #"+hearingID+" ("+stage+")")
	case hearingID != "":
		parts = append(parts, "Hearing #"+hearingID)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}
