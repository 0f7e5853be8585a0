package transcriber

import "context"

type StreamWriter interface {
	Write(pcm []byte) error
	Close() error
}

type ResultReceiver interface {
	OnResult(text string, isFinal bool)
	OnError(err error)
}

type StreamConfig struct {
	StreamID string
	Language string
	// Phrases are boosted during recognition, typically the voice command
	// patterns.
	Phrases []string
}

// Transcriber streams LINEAR16 mono PCM to a speech recognizer.
type Transcriber interface {
	StartStreaming(ctx context.Context, cfg StreamConfig, receiver ResultReceiver) (StreamWriter, error)
}
