//go:build !opus

package audio

import "github.com/foxseedlab/sessiondesk/internal/audio"

func NewOpusDecoder() (audio.Decoder, error) {
	return nil, audio.ErrDecoderUnavailable
}
