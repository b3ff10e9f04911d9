// Package trim removes leading and trailing silence from captured hearing
// audio. It decodes the artifact to mono 16-bit PCM over an ffmpeg pipe,
// computes a windowed RMS envelope, and rewrites the kept span with a stream
// copy when silence exceeds the configured padding. The envelope analysis is
// a pure function over the PCM reader so thresholds can be tested without
// ffmpeg.
//
// Trimming runs as the opening phase of the transcribe stage. Failures are
// tagged services.ErrTrimming so the caller can fall back to the untrimmed
// artifact.
package trim
