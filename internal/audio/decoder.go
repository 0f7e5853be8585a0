package audio

import "errors"

var ErrDecoderUnavailable = errors.New("opus decoder unavailable in this build")

// Decoder turns Opus packets from the host microphone into little-endian
// LINEAR16 PCM at SampleRate.
type Decoder interface {
	Decode(packet []byte) ([]byte, error)
	Close()
}

type DecoderFactory func() (Decoder, error)

const (
	SampleRate = 48000
	Channels   = 1
)
