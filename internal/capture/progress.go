package capture

import (
	"strconv"
	"strings"
	"time"
)

// ProgressUpdate is one assembled block of ffmpeg progress output.
type ProgressUpdate struct {
	OutTime time.Duration
	Speed   float64
	Done    bool
}

// progressAccumulator assembles ffmpeg -progress key=value lines into
// ProgressUpdate values. ffmpeg terminates each block with a progress=
// line, so an update is emitted only there and carries the latest values
// seen for the other keys.
type progressAccumulator struct {
	current ProgressUpdate
}

func (a *progressAccumulator) feed(line string) (ProgressUpdate, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return ProgressUpdate{}, false
	}
	value = strings.TrimSpace(value)
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys report microseconds; out_time_ms keeps its historical
		// name in ffmpeg.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			a.current.OutTime = time.Duration(us) * time.Microsecond
		}
	case "speed":
		if spd, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil && spd >= 0 {
			a.current.Speed = spd
		}
	case "progress":
		update := a.current
		update.Done = value == "end"
		return update, true
	}
	return ProgressUpdate{}, false
}
