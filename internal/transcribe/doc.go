// Package transcribe turns captured hearing audio into transcript
// artifacts.
//
// The HTTP client uploads audio as multipart form data to the external
// transcription service and parses the decimal-string second timestamps in
// the reply into exact milliseconds. The stage handler chains the full
// captured-to-transcribed action: silence trimming, submission, speaker
// labeling, and the transcript JSON write. Trim and labeling failures fall
// back (untrimmed audio, unknown speakers) rather than failing the stage;
// service and transport failures retry.
package transcribe
