package trim

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gavel/internal/config"
	"gavel/internal/media/ffprobe"
	"gavel/internal/services"
)

func audioProbe(duration string) ffprobe.Result {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "audio", CodecName: "opus", Channels: 1, SampleRate: "16000"}},
		Format:  ffprobe.Format{Duration: duration, FormatName: "ogg"},
	}
}

func testTrimmer(cfg config.Trim) *Trimmer {
	t := &Trimmer{cfg: cfg, ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	t.probe = func(context.Context, string) (ffprobe.Result, error) {
		return ffprobe.Result{}, errors.New("probe not stubbed")
	}
	t.decode = func(context.Context, string) (io.ReadCloser, error) {
		return nil, errors.New("decode not stubbed")
	}
	t.run = func(context.Context, string, ...string) error {
		return errors.New("runner not stubbed")
	}
	return t
}

func durationNear(t *testing.T, label string, got, want time.Duration) {
	t.Helper()
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Millisecond {
		t.Fatalf("%s = %v, want about %v", label, got, want)
	}
}

func TestProcessTrimsLeadAndTrailSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.ogg")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	perWindow := analysisSampleRate * 100 / 1000
	var pcm []byte
	pcm = append(pcm, pcmSilence(3*perWindow)...)
	pcm = append(pcm, pcmTone(5*perWindow, 8000)...)
	pcm = append(pcm, pcmSilence(2*perWindow)...)

	trimmer := testTrimmer(config.Trim{Enabled: true, SilenceThresholdDB: -40, WindowMillis: 100, PaddingSeconds: 0.05})
	trimmer.WithProber(func(_ context.Context, probePath string) (ffprobe.Result, error) {
		if strings.Contains(probePath, ".trim-tmp") {
			return audioProbe("0.600"), nil
		}
		return audioProbe("1.000"), nil
	})
	trimmer.WithDecoder(func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(pcm)), nil
	})
	var remuxArgs []string
	trimmer.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		if name != "ffmpeg" {
			t.Fatalf("unexpected command %q", name)
		}
		remuxArgs = args
		return os.WriteFile(args[len(args)-1], []byte("trimmed"), 0o644)
	})

	result, err := trimmer.Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Trimmed {
		t.Fatal("expected Trimmed")
	}
	durationNear(t, "Lead", result.Lead, 250*time.Millisecond)
	durationNear(t, "Trail", result.Trail, 150*time.Millisecond)
	durationNear(t, "Original", result.Original, time.Second)
	durationNear(t, "Final", result.Final, 600*time.Millisecond)

	joined := strings.Join(remuxArgs, " ")
	if !strings.Contains(joined, "-ss 0.250") {
		t.Errorf("remux args missing seek: %s", joined)
	}
	if !strings.Contains(joined, "-t 0.600") {
		t.Errorf("remux args missing span duration: %s", joined)
	}
	if !strings.Contains(joined, "-c copy") {
		t.Errorf("remux should stream copy: %s", joined)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "trimmed" {
		t.Fatalf("artifact not replaced, contents %q", contents)
	}
	if _, err := os.Stat(strings.TrimSuffix(path, ".ogg") + ".trim-tmp.ogg"); !os.IsNotExist(err) {
		t.Fatal("temp artifact left behind")
	}
}

func TestProcessAllSilentKeepsArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.ogg")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	perWindow := analysisSampleRate * 100 / 1000
	trimmer := testTrimmer(config.Trim{Enabled: true, SilenceThresholdDB: -40, WindowMillis: 100, PaddingSeconds: 0.5})
	trimmer.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return audioProbe("0.500"), nil
	})
	trimmer.WithDecoder(func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(pcmSilence(5 * perWindow))), nil
	})
	ranRemux := false
	trimmer.WithCommandRunner(func(context.Context, string, ...string) error {
		ranRemux = true
		return nil
	})

	result, err := trimmer.Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.AllSilent {
		t.Fatal("expected AllSilent")
	}
	if result.Trimmed {
		t.Fatal("all-silent artifact must not be trimmed")
	}
	if ranRemux {
		t.Fatal("remux must not run for all-silent artifact")
	}
	durationNear(t, "Final", result.Final, 500*time.Millisecond)

	contents, _ := os.ReadFile(path)
	if string(contents) != "original" {
		t.Fatal("artifact modified")
	}
}

func TestProcessShorterThanWindowIsNoop(t *testing.T) {
	trimmer := testTrimmer(config.Trim{Enabled: true, SilenceThresholdDB: -40, WindowMillis: 100, PaddingSeconds: 0.5})
	trimmer.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return audioProbe("0.050"), nil
	})
	decoded := false
	trimmer.WithDecoder(func(context.Context, string) (io.ReadCloser, error) {
		decoded = true
		return io.NopCloser(bytes.NewReader(nil)), nil
	})

	result, err := trimmer.Process(context.Background(), "short.ogg")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Trimmed || result.AllSilent {
		t.Fatal("short artifact must be a no-op")
	}
	if decoded {
		t.Fatal("short artifact must not be decoded")
	}
	durationNear(t, "Original", result.Original, 50*time.Millisecond)
}

func TestProcessNothingToTrim(t *testing.T) {
	perWindow := analysisSampleRate * 100 / 1000
	trimmer := testTrimmer(config.Trim{Enabled: true, SilenceThresholdDB: -40, WindowMillis: 100, PaddingSeconds: 0.05})
	trimmer.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return audioProbe("1.000"), nil
	})
	trimmer.WithDecoder(func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(pcmTone(10*perWindow, 8000))), nil
	})
	ranRemux := false
	trimmer.WithCommandRunner(func(context.Context, string, ...string) error {
		ranRemux = true
		return nil
	})

	result, err := trimmer.Process(context.Background(), "loud.ogg")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Trimmed {
		t.Fatal("expected no trim for loud artifact")
	}
	if ranRemux {
		t.Fatal("remux must not run when nothing to trim")
	}
	if result.Final != result.Original {
		t.Fatalf("Final %v should equal Original %v", result.Final, result.Original)
	}
}

func TestProcessDecodeFailureReturnsTrimmingError(t *testing.T) {
	trimmer := testTrimmer(config.Trim{Enabled: true, SilenceThresholdDB: -40, WindowMillis: 100})
	trimmer.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return audioProbe("1.000"), nil
	})
	trimmer.WithDecoder(func(context.Context, string) (io.ReadCloser, error) {
		return nil, errors.New("decoder exploded")
	})

	_, err := trimmer.Process(context.Background(), "audio.ogg")
	if !errors.Is(err, services.ErrTrimming) {
		t.Fatalf("expected ErrTrimming, got %v", err)
	}
}

func TestProcessRemuxFailureKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.ogg")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	perWindow := analysisSampleRate * 100 / 1000
	var pcm []byte
	pcm = append(pcm, pcmSilence(3*perWindow)...)
	pcm = append(pcm, pcmTone(7*perWindow, 8000)...)

	trimmer := testTrimmer(config.Trim{Enabled: true, SilenceThresholdDB: -40, WindowMillis: 100, PaddingSeconds: 0.05})
	trimmer.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return audioProbe("1.000"), nil
	})
	trimmer.WithDecoder(func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(pcm)), nil
	})
	trimmer.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("ffmpeg crashed")
	})

	_, err := trimmer.Process(context.Background(), path)
	if !errors.Is(err, services.ErrTrimming) {
		t.Fatalf("expected ErrTrimming, got %v", err)
	}
	contents, _ := os.ReadFile(path)
	if string(contents) != "original" {
		t.Fatal("original artifact must survive remux failure")
	}
}
