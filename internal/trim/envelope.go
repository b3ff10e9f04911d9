package trim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Analysis captures the windowed RMS envelope of a PCM stream and the
// leading and trailing runs of windows below the silence threshold.
type Analysis struct {
	// WindowSeconds is the duration covered by each envelope window.
	WindowSeconds float64
	// WindowsDB holds the RMS level of each full window in dBFS. A partial
	// trailing window is dropped and counts as content.
	WindowsDB []float64
	// LeadWindows is the number of consecutive silent windows at the start.
	LeadWindows int
	// TrailWindows is the number of consecutive silent windows at the end.
	TrailWindows int
	// AllSilent reports that every analyzed window fell below the threshold.
	AllSilent bool
}

// AnalyzePCM computes the RMS envelope over signed 16-bit little-endian mono
// samples read from r. Windows are windowMillis long at the given sample
// rate; a window is silent when its level falls below thresholdDB.
func AnalyzePCM(r io.Reader, sampleRate, windowMillis int, thresholdDB float64) (Analysis, error) {
	if sampleRate <= 0 || windowMillis <= 0 {
		return Analysis{}, fmt.Errorf("analyze pcm: invalid window (sample rate %d, window %dms)", sampleRate, windowMillis)
	}
	samplesPerWindow := sampleRate * windowMillis / 1000
	if samplesPerWindow <= 0 {
		return Analysis{}, fmt.Errorf("analyze pcm: window %dms too small for sample rate %d", windowMillis, sampleRate)
	}

	analysis := Analysis{WindowSeconds: float64(windowMillis) / 1000}
	buf := make([]byte, samplesPerWindow*2)
	for {
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return Analysis{}, fmt.Errorf("analyze pcm: read window: %w", err)
		}
		analysis.WindowsDB = append(analysis.WindowsDB, windowLevelDB(buf))
	}

	analysis.markSilentRuns(thresholdDB)
	return analysis, nil
}

func (a *Analysis) markSilentRuns(thresholdDB float64) {
	lead := 0
	for lead < len(a.WindowsDB) && a.WindowsDB[lead] < thresholdDB {
		lead++
	}
	if lead == len(a.WindowsDB) {
		a.LeadWindows = lead
		a.AllSilent = len(a.WindowsDB) > 0
		return
	}

	trail := 0
	for trail < len(a.WindowsDB) && a.WindowsDB[len(a.WindowsDB)-1-trail] < thresholdDB {
		trail++
	}
	a.LeadWindows = lead
	a.TrailWindows = trail
}

// windowLevelDB returns the RMS level of one window of s16le samples in
// dBFS. Digital silence reports negative infinity.
func windowLevelDB(frame []byte) float64 {
	count := len(frame) / 2
	if count == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for i := 0; i < count; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(frame[2*i:])))
		sum += sample * sample
	}
	rms := math.Sqrt(sum/float64(count)) / 32768
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// keepSpan converts silent window runs into the span to keep, padded so the
// cut sits slightly inside the silence. Results are clamped to the artifact
// bounds.
func keepSpan(analysis Analysis, duration, paddingSeconds float64) (start, end float64) {
	start = float64(analysis.LeadWindows)*analysis.WindowSeconds - paddingSeconds
	if start < 0 {
		start = 0
	}
	end = duration - float64(analysis.TrailWindows)*analysis.WindowSeconds + paddingSeconds
	if end > duration {
		end = duration
	}
	if end < start {
		end = start
	}
	return start, end
}
