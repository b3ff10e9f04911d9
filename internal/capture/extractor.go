package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gavel/internal/config"
	"gavel/internal/media/ffprobe"
)

// manifestProbeTimeout bounds the pre-capture duration probe.
const manifestProbeTimeout = 30 * time.Second

// Request describes one capture run.
type Request struct {
	ManifestURL      string
	DestPath         string
	ExpectedDuration time.Duration
	UserAgent        string
	Headers          map[string]string
}

// Artifact describes a verified capture output.
type Artifact struct {
	Path            string
	Format          string
	SampleRate      int
	Channels        int
	DurationSeconds float64
	Fingerprint     string
}

// Executor abstracts ffmpeg execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the extractor.
type Option func(*Extractor)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(e *Extractor) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// WithProber overrides artifact inspection (for testing).
func WithProber(probe func(ctx context.Context, path string) (ffprobe.Result, error)) Option {
	return func(e *Extractor) {
		if probe != nil {
			e.probe = probe
		}
	}
}

// Extractor streams manifests into compressed audio artifacts via ffmpeg.
type Extractor struct {
	cfg     config.Capture
	ffmpeg  string
	ffprobe string
	exec    Executor
	probe   func(ctx context.Context, path string) (ffprobe.Result, error)
}

// New constructs an Extractor from repository configuration.
func New(cfg *config.Config, opts ...Option) *Extractor {
	e := &Extractor{
		cfg:     cfg.Capture,
		ffmpeg:  cfg.FFmpegBinary(),
		ffprobe: cfg.FFprobeBinary(),
		exec:    commandExecutor{},
	}
	e.probe = func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, e.ffprobe, path)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the per-call deadline for a capture of the expected
// duration: the configured base plus the duration scaled by the configured
// factor. Zero means no deadline.
func (e *Extractor) Timeout(expected time.Duration) time.Duration {
	base := time.Duration(e.cfg.TimeoutBase) * time.Second
	scaled := time.Duration(float64(expected) * e.cfg.TimeoutScale)
	if scaled < 0 {
		scaled = 0
	}
	return base + scaled
}

// ExpectedDuration probes the manifest for a reported duration so the
// capture timeout can scale with it. Live manifests and probe failures
// yield zero, leaving only the base timeout.
func (e *Extractor) ExpectedDuration(ctx context.Context, manifestURL string) time.Duration {
	probeCtx, cancel := context.WithTimeout(ctx, manifestProbeTimeout)
	defer cancel()

	result, err := e.probe(probeCtx, manifestURL)
	if err != nil {
		return 0
	}
	seconds := result.DurationSeconds()
	if !(seconds > 0) {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Extract streams the manifest into req.DestPath and returns the verified
// artifact. Partial output is removed on failure so retries start clean.
func (e *Extractor) Extract(ctx context.Context, req Request, progress func(ProgressUpdate)) (Artifact, error) {
	manifestURL := strings.TrimSpace(req.ManifestURL)
	if manifestURL == "" {
		return Artifact{}, errors.New("capture: manifest URL required")
	}
	dest := strings.TrimSpace(req.DestPath)
	if dest == "" {
		return Artifact{}, errors.New("capture: destination path required")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Artifact{}, fmt.Errorf("capture: create destination dir: %w", err)
	}

	runCtx := ctx
	if timeout := e.Timeout(req.ExpectedDuration); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	acc := &progressAccumulator{}
	onStdout := func(line string) {
		if progress == nil {
			return
		}
		if update, ok := acc.feed(line); ok {
			progress(update)
		}
	}

	if err := e.exec.Run(runCtx, e.ffmpeg, e.buildArgs(req, manifestURL, dest), onStdout); err != nil {
		_ = os.Remove(dest)
		return Artifact{}, fmt.Errorf("capture: ffmpeg: %w", err)
	}

	artifact, err := e.verify(ctx, dest)
	if err != nil {
		_ = os.Remove(dest)
		return Artifact{}, err
	}
	return artifact, nil
}

func (e *Extractor) buildArgs(req Request, manifestURL, dest string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-nostdin"}
	if ua := strings.TrimSpace(req.UserAgent); ua != "" {
		args = append(args, "-user_agent", ua)
	}
	if len(req.Headers) > 0 {
		keys := make([]string, 0, len(req.Headers))
		for key := range req.Headers {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var header strings.Builder
		for _, key := range keys {
			fmt.Fprintf(&header, "%s: %s\r\n", key, req.Headers[key])
		}
		args = append(args, "-headers", header.String())
	}
	args = append(args, "-i", manifestURL, "-vn", "-sn", "-dn")
	if e.cfg.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(e.cfg.Channels))
	}
	if e.cfg.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(e.cfg.SampleRate))
	}
	if codec := strings.TrimSpace(e.cfg.Codec); codec != "" {
		args = append(args, "-c:a", codec)
	}
	if bitrate := strings.TrimSpace(e.cfg.Bitrate); bitrate != "" {
		args = append(args, "-b:a", bitrate)
	}
	args = append(args, "-progress", "pipe:1", dest)
	return args
}

// verify confirms the artifact decodes as audio before it is recorded.
func (e *Extractor) verify(ctx context.Context, path string) (Artifact, error) {
	result, err := e.probe(ctx, path)
	if err != nil {
		return Artifact{}, fmt.Errorf("capture: verify artifact: %w", err)
	}
	if result.AudioStreamCount() == 0 {
		return Artifact{}, fmt.Errorf("capture: artifact %s has no audio stream", path)
	}
	duration := result.DurationSeconds()
	if !(duration > 0) {
		return Artifact{}, fmt.Errorf("capture: artifact %s reports no duration", path)
	}

	fingerprint, err := Fingerprint(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("capture: %w", err)
	}

	artifact := Artifact{
		Path:            path,
		Format:          result.Format.FormatName,
		SampleRate:      e.cfg.SampleRate,
		Channels:        e.cfg.Channels,
		DurationSeconds: duration,
		Fingerprint:     fingerprint,
	}
	if stream, ok := result.PrimaryAudio(); ok {
		if rate := stream.SampleRateHz(); rate > 0 {
			artifact.SampleRate = rate
		}
		if stream.Channels > 0 {
			artifact.Channels = stream.Channels
		}
	}
	return artifact, nil
}

// ArtifactExtension maps an ffmpeg audio codec to the container extension
// capture writes.
func ArtifactExtension(codec string) string {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "", "libopus", "opus", "libvorbis", "vorbis":
		return ".ogg"
	case "aac", "libfdk_aac":
		return ".m4a"
	case "libmp3lame", "mp3":
		return ".mp3"
	case "flac":
		return ".flac"
	default:
		return ".ogg"
	}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if onStdout != nil {
			onStdout(scanner.Text())
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("%s: %w: %s", binary, err, detail)
		}
		return fmt.Errorf("%s: %w", binary, err)
	}
	if scanErr != nil {
		return fmt.Errorf("scan %s output: %w", binary, scanErr)
	}
	return nil
}
