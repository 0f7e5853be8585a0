package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/sessiondesk/internal/audio"
	"github.com/foxseedlab/sessiondesk/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	cloudPlatformScope    = "https://www.googleapis.com/auth/cloud-platform"

	maxPhraseHints  = 500
	maxPhraseLength = 100
	phraseBoost     = 10
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

// CloudSpeechTranscriber recognizes short spoken commands with Cloud Speech
// v2 streaming. Command patterns are sent as an inline phrase set so short
// utterances like "pause" are not lost to similar sounding words.
type CloudSpeechTranscriber struct {
	projectID       string
	credentialsJSON string
	defaultLanguage string
	location        string
	model           string
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) transcriber.Transcriber {
	return &CloudSpeechTranscriber{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		defaultLanguage: cfg.Language,
		location:        strings.TrimSpace(cfg.Location),
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (t *CloudSpeechTranscriber) StartStreaming(ctx context.Context, cfg transcriber.StreamConfig, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	if cfg.Language == "" {
		cfg.Language = t.defaultLanguage
	}
	client, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}

	configReq := t.configRequest(cfg)
	open := func() (speechpb.Speech_StreamingRecognizeClient, error) {
		stream, err := client.StreamingRecognize(ctx)
		if err != nil {
			return nil, fmt.Errorf("open recognize stream: %w", err)
		}
		if err := stream.Send(configReq); err != nil {
			_ = stream.CloseSend()
			return nil, fmt.Errorf("send recognition config: %w", err)
		}
		return stream, nil
	}

	stream, err := open()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	slog.Info("cloud speech stream opened",
		"stream_id", cfg.StreamID,
		"location", t.location,
		"language", cfg.Language,
		"model", t.model,
		"phrase_hints", len(configReq.GetStreamingConfig().GetConfig().GetAdaptation().GetPhraseSets()) > 0,
	)

	w := &commandStream{
		streamID: cfg.StreamID,
		receiver: receiver,
		open:     open,
		client:   client,
	}
	w.attach(stream)
	return w, nil
}

func (t *CloudSpeechTranscriber) dial(ctx context.Context) (*speech.Client, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{cloudPlatformScope},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if t.location != "" && t.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return client, nil
}

func (t *CloudSpeechTranscriber) recognizer() string {
	location := t.location
	if location == "" {
		location = "global"
	}
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.projectID, location)
}

func (t *CloudSpeechTranscriber) configRequest(cfg transcriber.StreamConfig) *speechpb.StreamingRecognizeRequest {
	recognition := &speechpb.RecognitionConfig{
		Model:         t.model,
		LanguageCodes: []string{cfg.Language},
		DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
			ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
				Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
				SampleRateHertz:   audio.SampleRate,
				AudioChannelCount: audio.Channels,
			},
		},
		Features:   &speechpb.RecognitionFeatures{},
		Adaptation: phraseAdaptation(cfg.Phrases),
	}
	return &speechpb.StreamingRecognizeRequest{
		Recognizer: t.recognizer(),
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: recognition,
				// commands act on finalized phrases only
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: false},
			},
		},
	}
}

// phraseAdaptation returns nil when there is nothing to boost.
func phraseAdaptation(phrases []string) *speechpb.SpeechAdaptation {
	var hints []*speechpb.PhraseSet_Phrase
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" || len([]rune(p)) > maxPhraseLength {
			continue
		}
		hints = append(hints, &speechpb.PhraseSet_Phrase{Value: p, Boost: phraseBoost})
		if len(hints) == maxPhraseHints {
			break
		}
	}
	if len(hints) == 0 {
		return nil
	}
	return &speechpb.SpeechAdaptation{
		PhraseSets: []*speechpb.SpeechAdaptation_AdaptationPhraseSet{{
			Value: &speechpb.SpeechAdaptation_AdaptationPhraseSet_InlinePhraseSet{
				InlinePhraseSet: &speechpb.PhraseSet{Phrases: hints},
			},
		}},
	}
}

// commandStream writes PCM to the current recognize stream and transparently
// replaces it when the service ends it (5 minute cap, idle timeout).
type commandStream struct {
	streamID string
	receiver transcriber.ResultReceiver
	open     func() (speechpb.Speech_StreamingRecognizeClient, error)
	client   *speech.Client

	mu     sync.Mutex
	closed bool
	stream speechpb.Speech_StreamingRecognizeClient
}

func (w *commandStream) Write(pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: pcm},
	}
	err := w.stream.Send(req)
	if err == nil || !isReconnectableStreamError(err) {
		return err
	}
	slog.Warn("speech stream ended by service; reopening", "error", err, "stream_id", w.streamID)
	if err := w.reopenLocked(); err != nil {
		return fmt.Errorf("reopen speech stream: %w", err)
	}
	return w.stream.Send(req)
}

func (w *commandStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	sendErr := w.stream.CloseSend()
	closeErr := w.client.Close()
	return errors.Join(sendErr, closeErr)
}

func (w *commandStream) reopenLocked() error {
	_ = w.stream.CloseSend()
	next, err := w.open()
	if err != nil {
		slog.Error("failed to reopen speech stream", "error", err, "stream_id", w.streamID)
		return err
	}
	w.attach(next)
	slog.Info("speech stream reopened", "stream_id", w.streamID)
	return nil
}

// attach makes stream current and starts its receive loop. Each loop ends
// with its own stream, so a replaced stream never reports into the new one.
func (w *commandStream) attach(stream speechpb.Speech_StreamingRecognizeClient) {
	w.stream = stream
	go w.receive(stream)
}

func (w *commandStream) receive(stream speechpb.Speech_StreamingRecognizeClient) {
	for {
		resp, err := stream.Recv()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), status.Code(err) == codes.Canceled, errors.Is(err, context.Canceled):
				slog.Debug("speech receive loop stopped", "reason", err.Error(), "stream_id", w.streamID)
			case isReconnectableStreamError(err):
				// the next Write reopens the stream
				slog.Info("speech stream closed by service", "error", err, "stream_id", w.streamID)
			default:
				w.receiver.OnError(err)
			}
			return
		}
		for _, result := range resp.GetResults() {
			alternatives := result.GetAlternatives()
			if len(alternatives) == 0 {
				continue
			}
			w.receiver.OnResult(alternatives[0].GetTranscript(), result.GetIsFinal())
		}
	}
}

func isReconnectableStreamError(err error) bool {
	if errors.Is(err, io.EOF) || strings.Contains(strings.ToLower(err.Error()), "eof") {
		return true
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return false
	}
	msg := strings.ToLower(st.Message())
	return strings.Contains(msg, "max duration of 5 minutes") ||
		strings.Contains(msg, "stream timed out after receiving no more client requests")
}
