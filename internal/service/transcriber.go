package service

import "context"

// Transcriber converts a downloaded voice recording into text. The
// concrete engine (cloud ASR or local) is supplied by the host; the
// bridge only cares about the transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}
