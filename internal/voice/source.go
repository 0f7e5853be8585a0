package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxseedlab/sessiondesk/internal/audio"
	"github.com/foxseedlab/sessiondesk/internal/transcriber"
)

var ErrNotListening = errors.New("speech source is not listening")

type TranscriptHandler func(ctx context.Context, transcript string)

// Source produces finalized transcripts while listening.
type Source interface {
	Supported() bool
	StartListening(ctx context.Context, handler TranscriptHandler) error
	StopListening()
}

// HostSource relays transcripts recognized by the host view's own speech API.
type HostSource struct {
	supported func() bool

	mu      sync.Mutex
	handler TranscriptHandler
}

func NewHostSource(supported func() bool) *HostSource {
	return &HostSource{supported: supported}
}

func (s *HostSource) Supported() bool {
	return s.supported != nil && s.supported()
}

func (s *HostSource) StartListening(_ context.Context, handler TranscriptHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	return nil
}

func (s *HostSource) StopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = nil
}

// Deliver hands a finalized host transcript to the active handler.
func (s *HostSource) Deliver(ctx context.Context, transcript string) error {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return ErrNotListening
	}
	handler(ctx, transcript)
	return nil
}

type StreamSourceOptions struct {
	StreamID    string
	Language    string
	Transcriber transcriber.Transcriber
	NewDecoder  audio.DecoderFactory
	// Phrases is read each time listening starts.
	Phrases func() []string
}

// StreamSource recognizes speech server side from Opus frames sent by the host.
type StreamSource struct {
	streamID    string
	language    string
	transcriber transcriber.Transcriber
	newDecoder  audio.DecoderFactory
	phrases     func() []string

	mu      sync.Mutex
	cancel  context.CancelFunc
	writer  transcriber.StreamWriter
	decoder audio.Decoder
}

func NewStreamSource(opts StreamSourceOptions) *StreamSource {
	return &StreamSource{
		streamID:    opts.StreamID,
		language:    opts.Language,
		transcriber: opts.Transcriber,
		newDecoder:  opts.NewDecoder,
		phrases:     opts.Phrases,
	}
}

func (s *StreamSource) Supported() bool {
	if s.transcriber == nil || s.newDecoder == nil {
		return false
	}
	dec, err := s.newDecoder()
	if err != nil {
		return false
	}
	dec.Close()
	return true
}

func (s *StreamSource) StartListening(ctx context.Context, handler TranscriptHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		return nil
	}
	dec, err := s.newDecoder()
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	// the stream outlives the request that started it
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cfg := transcriber.StreamConfig{StreamID: s.streamID, Language: s.language}
	if s.phrases != nil {
		cfg.Phrases = s.phrases()
	}
	w, err := s.transcriber.StartStreaming(streamCtx, cfg, &streamReceiver{
		ctx:      streamCtx,
		streamID: s.streamID,
		handler:  handler,
	})
	if err != nil {
		cancel()
		dec.Close()
		return fmt.Errorf("start speech stream: %w", err)
	}
	s.cancel = cancel
	s.writer = w
	s.decoder = dec
	return nil
}

func (s *StreamSource) StopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return
	}
	if err := s.writer.Close(); err != nil {
		slog.Warn("failed to close speech stream", "error", err, "stream_id", s.streamID)
	}
	s.decoder.Close()
	s.cancel()
	s.writer = nil
	s.decoder = nil
	s.cancel = nil
}

// Feed decodes one Opus packet and forwards the PCM to the recognizer.
func (s *StreamSource) Feed(packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return ErrNotListening
	}
	pcm, err := s.decoder.Decode(packet)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}
	return s.writer.Write(pcm)
}

type streamReceiver struct {
	ctx      context.Context
	streamID string
	handler  TranscriptHandler
}

func (r *streamReceiver) OnResult(text string, isFinal bool) {
	if !isFinal {
		return
	}
	r.handler(r.ctx, text)
}

func (r *streamReceiver) OnError(err error) {
	slog.Error("speech stream failed", "error", err, "stream_id", r.streamID)
}
