//go:build opus

package audio

import (
	"fmt"
	"sync"

	"github.com/foxseedlab/sessiondesk/internal/audio"
	"github.com/hraban/opus"
)

type OpusDecoder struct {
	mu     sync.Mutex
	dec    *opus.Decoder
	pcm    []int16
	closed bool
}

func NewOpusDecoder() (audio.Decoder, error) {
	dec, err := opus.NewDecoder(audio.SampleRate, audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{
		dec: dec,
		pcm: make([]int16, samplesPerFrame*audio.Channels),
	}, nil
}

func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, nil
	}
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("decode opus packet: %w", err)
	}
	return encodePCM(d.pcm[:n*audio.Channels]), nil
}

func (d *OpusDecoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.dec = nil
}
