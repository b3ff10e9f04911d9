package trim

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gavel/internal/config"
	"gavel/internal/media/ffprobe"
	"gavel/internal/services"
)

// analysisSampleRate is the decode rate used for envelope analysis. The
// captured artifact is already mono speech audio, so resampling to a fixed
// rate keeps window math independent of the source container.
const analysisSampleRate = 16000

// Result reports what trimming did to an artifact. Lead plus Final plus
// Trail always equals Original.
type Result struct {
	Trimmed   bool
	AllSilent bool
	Lead      time.Duration
	Trail     time.Duration
	Original  time.Duration
	Final     time.Duration
}

// Trimmer performs silence analysis and span rewrites on captured audio.
type Trimmer struct {
	cfg     config.Trim
	ffmpeg  string
	ffprobe string

	probe  func(ctx context.Context, path string) (ffprobe.Result, error)
	decode func(ctx context.Context, path string) (io.ReadCloser, error)
	run    func(ctx context.Context, name string, args ...string) error
}

// New builds a Trimmer from the repository configuration.
func New(cfg *config.Config) *Trimmer {
	t := &Trimmer{
		cfg:     cfg.Trim,
		ffmpeg:  cfg.FFmpegBinary(),
		ffprobe: cfg.FFprobeBinary(),
	}
	t.probe = func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, t.ffprobe, path)
	}
	t.decode = t.startDecode
	t.run = runCommand
	return t
}

// WithProber sets a custom artifact prober (for testing).
func (t *Trimmer) WithProber(fn func(ctx context.Context, path string) (ffprobe.Result, error)) {
	t.probe = fn
}

// WithDecoder sets a custom PCM decoder (for testing).
func (t *Trimmer) WithDecoder(fn func(ctx context.Context, path string) (io.ReadCloser, error)) {
	t.decode = fn
}

// WithCommandRunner sets a custom command runner (for testing).
func (t *Trimmer) WithCommandRunner(fn func(ctx context.Context, name string, args ...string) error) {
	t.run = fn
}

// Process analyzes the artifact at path and rewrites it in place with
// leading and trailing silence removed. The artifact is left untouched when
// it is shorter than one analysis window, when every window is silent, or
// when padding swallows the detected spans.
func (t *Trimmer) Process(ctx context.Context, path string) (Result, error) {
	var result Result
	if strings.TrimSpace(path) == "" {
		return result, services.Wrap(services.ErrTrimming, "trim", "validate input", "audio path required", nil)
	}

	probe, err := t.probe(ctx, path)
	if err != nil {
		return result, services.Wrap(services.ErrTrimming, "trim", "probe artifact", "inspect captured audio", err)
	}
	duration := probe.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		return result, services.Wrap(services.ErrTrimming, "trim", "probe artifact", "captured audio reports no duration", nil)
	}
	result.Original = secondsToDuration(duration)
	result.Final = result.Original

	windowSeconds := float64(t.cfg.WindowMillis) / 1000
	if windowSeconds <= 0 || duration < windowSeconds {
		return result, nil
	}

	stream, err := t.decode(ctx, path)
	if err != nil {
		return result, services.Wrap(services.ErrTrimming, "trim", "decode audio", "start pcm decode", err)
	}
	analysis, analyzeErr := AnalyzePCM(stream, analysisSampleRate, t.cfg.WindowMillis, t.cfg.SilenceThresholdDB)
	closeErr := stream.Close()
	if analyzeErr != nil {
		return result, services.Wrap(services.ErrTrimming, "trim", "silence analysis", "compute rms envelope", analyzeErr)
	}
	if closeErr != nil {
		return result, services.Wrap(services.ErrTrimming, "trim", "decode audio", "pcm decode failed", closeErr)
	}

	if len(analysis.WindowsDB) == 0 {
		return result, nil
	}
	if analysis.AllSilent {
		result.AllSilent = true
		return result, nil
	}

	start, end := keepSpan(analysis, duration, t.cfg.PaddingSeconds)
	if start <= 0 && end >= duration {
		return result, nil
	}

	if err := t.rewriteSpan(ctx, path, start, end); err != nil {
		return result, err
	}

	result.Trimmed = true
	result.Lead = secondsToDuration(start)
	result.Trail = secondsToDuration(duration - end)
	result.Final = secondsToDuration(end - start)
	return result, nil
}

// rewriteSpan stream-copies the kept span to a sibling temp file, verifies
// it, and swaps it into place.
func (t *Trimmer) rewriteSpan(ctx context.Context, path string, start, end float64) error {
	ext := filepath.Ext(path)
	tmpPath := strings.TrimSuffix(path, ext) + ".trim-tmp" + ext

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", start),
		"-i", path,
		"-t", fmt.Sprintf("%.3f", end-start),
		"-map", "0:a",
		"-c", "copy",
		tmpPath,
	}
	if err := t.run(ctx, t.ffmpeg, args...); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrTrimming, "trim", "trim remux", "rewrite kept span", err)
	}

	verify, err := t.probe(ctx, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrTrimming, "trim", "verify artifact", "inspect trimmed audio", err)
	}
	if verify.AudioStreamCount() == 0 || !(verify.DurationSeconds() > 0) {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrTrimming, "trim", "verify artifact", "trimmed audio failed verification", nil)
	}

	if err := os.Remove(path); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrTrimming, "trim", "trim remux", "remove original artifact", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return services.Wrap(services.ErrTrimming, "trim", "trim remux", "replace artifact", err)
	}
	return nil
}

// startDecode launches ffmpeg writing s16le mono PCM to its stdout pipe.
// Closing the returned stream reaps the process and surfaces decode errors.
func (t *Trimmer) startDecode(ctx context.Context, path string) (io.ReadCloser, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", "0:a:0",
		"-ac", "1",
		"-ar", strconv.Itoa(analysisSampleRate),
		"-f", "s16le",
		"-",
	}
	cmd := exec.CommandContext(ctx, t.ffmpeg, args...) //nolint:gosec
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg pcm decode: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg pcm decode: start: %w", err)
	}
	return &pcmStream{pipe: pipe, cmd: cmd, stderr: stderr}, nil
}

type pcmStream struct {
	pipe   io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

func (s *pcmStream) Read(p []byte) (int, error) {
	return s.pipe.Read(p)
}

func (s *pcmStream) Close() error {
	_ = s.pipe.Close()
	if err := s.cmd.Wait(); err != nil {
		if detail := strings.TrimSpace(s.stderr.String()); detail != "" {
			return fmt.Errorf("ffmpeg pcm decode: %w: %s", err, detail)
		}
		return fmt.Errorf("ffmpeg pcm decode: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("%s: %w: %s", name, err, detail)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
