// Package capture extracts hearing audio from stream manifests.
//
// The extractor streams a manifest through ffmpeg into a compressed mono
// artifact without buffering content in memory, reporting progress parsed
// from ffmpeg's machine-readable progress output. Completed artifacts are
// verified with ffprobe, fingerprinted with BLAKE3, and described back to
// the stage handler, which records them on the hearing. Per-call timeouts
// scale with the expected stream duration.
package capture
