package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/desk"
	"github.com/foxseedlab/sessiondesk/internal/draft"
	"github.com/foxseedlab/sessiondesk/internal/event"
	"github.com/foxseedlab/sessiondesk/internal/feedback"
	"github.com/foxseedlab/sessiondesk/internal/session"
	"github.com/foxseedlab/sessiondesk/internal/voice"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsEventBuffer  = 128
	wsReplyBuffer  = 16
	wsWriteTimeout = 5 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsReadLimit    = 1 << 20
)

var (
	errUnknownCommand = errors.New("unknown command")
	errMissingField   = errors.New("missing field")
)

var upgrader = websocket.Upgrader{
	// host views are served from their own origin
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
}

// command is a JSON text frame sent by the host view. Binary frames carry
// Opus audio instead.
type command struct {
	ID           string                 `json:"id,omitempty"`
	Type         string                 `json:"type"`
	Value        string                 `json:"value,omitempty"`
	Visible      *bool                  `json:"visible,omitempty"`
	Listen       *bool                  `json:"listen,omitempty"`
	Draft        string                 `json:"draft,omitempty"`
	Fields       map[string]any         `json:"fields,omitempty"`
	Capabilities *feedback.Capabilities `json:"capabilities,omitempty"`
}

type reply struct {
	Kind    string                `json:"kind"`
	ID      string                `json:"id,omitempty"`
	Type    string                `json:"type,omitempty"`
	OK      bool                  `json:"ok"`
	Code    string                `json:"code,omitempty"`
	Error   string                `json:"error,omitempty"`
	Draft   *draft.Snapshot       `json:"draft,omitempty"`
	Session *session.Snapshot     `json:"session,omitempty"`
	Alerts  []session.AlertStatus `json:"alerts,omitempty"`
}

func (s *Server) handleDeskSocket(c *gin.Context) {
	deskID := c.Param("desk")
	d, err := s.manager.Get(c.Request.Context(), deskID)
	if err != nil {
		writeError(c, err)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("failed to upgrade websocket", "error", err, "desk_id", deskID)
		return
	}
	slog.Info("host view connected", "desk_id", deskID, "remote_addr", c.ClientIP())

	events, unsubscribe := s.manager.Bus().Subscribe(deskID, wsEventBuffer)
	replies := make(chan reply, wsReplyBuffer)
	ctx, cancel := context.WithCancel(context.Background())

	snap := d.Controller.Snapshot()
	replies <- reply{Kind: "hello", OK: true, Session: &snap, Alerts: d.Controller.Alerts()}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeLoop(ctx, conn, events, replies)
		// a failed write must also stop the reader
		_ = conn.Close()
	}()

	readLoop(ctx, conn, d, replies)

	cancel()
	unsubscribe()
	<-writerDone
	d.Voice.StopListening()
	slog.Info("host view disconnected", "desk_id", deskID)
}

func writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan event.Event, replies <-chan reply) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		var err error
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(wsWriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			err = writeJSON(conn, e)
		case r := <-replies:
			err = writeJSON(conn, r)
		case <-ping.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
		}
		if err != nil {
			slog.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func readLoop(ctx context.Context, conn *websocket.Conn, d *desk.Desk, replies chan<- reply) {
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "error", err, "desk_id", d.ID)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		var r reply
		switch messageType {
		case websocket.BinaryMessage:
			err := d.FeedAudio(data)
			if err == nil {
				continue
			}
			r = replyFor(command{Type: "audio"}, nil, err)
		case websocket.TextMessage:
			var cmd command
			if err := json.Unmarshal(data, &cmd); err != nil {
				r = replyFor(cmd, nil, fmt.Errorf("decode command: %w", err))
			} else {
				snap, err := execute(ctx, d, cmd)
				r = replyFor(cmd, snap, err)
			}
		default:
			continue
		}

		select {
		case replies <- r:
		case <-ctx.Done():
			return
		}
	}
}

// execute runs one host command against the desk. Only draft commands
// return a snapshot.
func execute(ctx context.Context, d *desk.Desk, cmd command) (*draft.Snapshot, error) {
	ctrl := d.Controller
	switch cmd.Type {
	case "start":
		return nil, ctrl.Start()
	case "pause":
		return nil, ctrl.Pause()
	case "resume":
		return nil, ctrl.Resume()
	case "end":
		return nil, ctrl.End()
	case "reset":
		return nil, ctrl.Reset()
	case "reset_duration":
		return nil, ctrl.ResetDuration()
	case "set_patient":
		return nil, ctrl.SetPatient(cmd.Value)
	case "set_appointment":
		return nil, ctrl.SetAppointment(cmd.Value)
	case "set_notes":
		return nil, ctrl.SetNotes(cmd.Value)
	case "clear_notes":
		return nil, ctrl.ClearNotes()
	case "visibility":
		if cmd.Visible == nil {
			return nil, fmt.Errorf("%w: visible", errMissingField)
		}
		return nil, ctrl.HandleVisibility(*cmd.Visible)
	case "capabilities":
		if cmd.Capabilities == nil {
			return nil, fmt.Errorf("%w: capabilities", errMissingField)
		}
		d.SetCapabilities(*cmd.Capabilities)
		return nil, nil
	case "listen":
		if cmd.Listen == nil {
			return nil, fmt.Errorf("%w: listen", errMissingField)
		}
		if *cmd.Listen {
			return nil, d.Voice.StartListening(ctx)
		}
		d.Voice.StopListening()
		return nil, nil
	case "transcript":
		return nil, d.DeliverTranscript(ctx, cmd.Value)
	case "draft_touch", "draft_restore", "draft_dismiss", "draft_submit":
		return executeDraft(ctx, d, cmd)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownCommand, cmd.Type)
	}
}

func executeDraft(ctx context.Context, d *desk.Desk, cmd command) (*draft.Snapshot, error) {
	sched, err := d.Draft(cmd.Draft)
	if err != nil {
		return nil, err
	}
	switch cmd.Type {
	case "draft_touch":
		if len(cmd.Fields) == 0 {
			return nil, fmt.Errorf("%w: fields", errMissingField)
		}
		sched.Touch(cmd.Fields)
		return nil, nil
	case "draft_restore":
		return sched.Restore(ctx)
	case "draft_dismiss":
		sched.Dismiss()
		return nil, nil
	default:
		return nil, sched.Submit(ctx)
	}
}

func replyFor(cmd command, snap *draft.Snapshot, err error) reply {
	r := reply{Kind: "reply", ID: cmd.ID, Type: cmd.Type, OK: err == nil, Draft: snap}
	if err != nil {
		r.Code = errorCode(err)
		r.Error = err.Error()
	}
	return r
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, session.ErrClosed):
		return "closed"
	case errors.Is(err, draft.ErrNoDraft):
		return "no_draft"
	case errors.Is(err, desk.ErrUnknownDraft):
		return "unknown_draft"
	case errors.Is(err, desk.ErrNoAudioStream):
		return "no_audio_stream"
	case errors.Is(err, voice.ErrUnsupported):
		return "speech_unsupported"
	case errors.Is(err, voice.ErrNotListening):
		return "not_listening"
	case errors.Is(err, errUnknownCommand):
		return "unknown_command"
	case errors.Is(err, errMissingField):
		return "missing_field"
	default:
		return "error"
	}
}
