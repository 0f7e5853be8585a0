package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/sessiondesk/internal/config"
	"github.com/foxseedlab/sessiondesk/internal/desk"
	"github.com/foxseedlab/sessiondesk/internal/draft"
	"github.com/foxseedlab/sessiondesk/internal/feedback"
	"github.com/foxseedlab/sessiondesk/internal/metrics"
	"github.com/foxseedlab/sessiondesk/internal/repository"
	"github.com/foxseedlab/sessiondesk/internal/session"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

type idleTicker struct{ ch chan time.Time }

func (t *idleTicker) C() <-chan time.Time { return t.ch }
func (t *idleTicker) Stop()               {}

type mockRecords struct {
	mu        sync.Mutex
	records   []repository.SessionRecord
	lastLimit int
}

func (m *mockRecords) SaveSessionRecord(context.Context, repository.SaveSessionRecordInput) error {
	return nil
}

func (m *mockRecords) ListSessionRecordsByPatient(_ context.Context, patientRef string, limit int) ([]repository.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []repository.SessionRecord
	for _, r := range m.records {
		if r.PatientRef == patientRef {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRecords) UpdateAppointmentStatus(context.Context, string, repository.AppointmentStatus) error {
	return nil
}

type nopDrafts struct{}

func (nopDrafts) WriteDraft(context.Context, string, draft.Snapshot) error { return nil }
func (nopDrafts) ReadDraft(context.Context, string) (*draft.Snapshot, error) {
	return nil, nil
}
func (nopDrafts) ClearDraft(context.Context, string) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *mockRecords) {
	t.Helper()
	records := &mockRecords{}
	manager := desk.NewManager(&config.Config{
		AutoSaveDelay:    time.Hour,
		DraftMaxAge:      24 * time.Hour,
		VoiceAwakeWindow: 5 * time.Second,
		SpeechMode:       config.SpeechModeHost,
	}, desk.Deps{
		Records: records,
		Drafts:  nopDrafts{},
		NewTicker: func(time.Duration) session.Ticker {
			return &idleTicker{ch: make(chan time.Time)}
		},
	})
	reg := prometheus.NewRegistry()
	manager.Bus().Attach("", metrics.NewRecorder(reg))

	s := New(Options{Manager: manager, Records: records, Gatherer: reg})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		manager.Shutdown()
	})
	return ts, records
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	var body map[string]any
	if status := getJSON(t, ts.URL+"/healthz", &body); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "sessiondesk_session_running") {
		t.Fatalf("expected session gauge in metrics output, got %s", body)
	}
}

func TestSessionView(t *testing.T) {
	ts, _ := newTestServer(t)
	var view sessionView
	if status := getJSON(t, ts.URL+"/desks/room-1/session", &view); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if view.Session.DeskID != "room-1" || view.Session.State != session.StateIdle {
		t.Fatalf("unexpected session view: %+v", view.Session)
	}
	if len(view.Alerts) == 0 {
		t.Fatal("expected default alerts in session view")
	}
	if view.Draft != nil {
		t.Fatalf("expected no notes draft, got %+v", view.Draft)
	}
}

func TestSessionView_InvalidDeskID(t *testing.T) {
	ts, _ := newTestServer(t)
	if status := getJSON(t, ts.URL+"/desks/bad.id/session", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestPatientSessions(t *testing.T) {
	ts, records := newTestServer(t)
	records.mu.Lock()
	records.records = []repository.SessionRecord{
		{ID: "r-1", PatientRef: "p-1", DurationSeconds: 3000},
		{ID: "r-2", PatientRef: "p-2", DurationSeconds: 1200},
	}
	records.mu.Unlock()

	var body struct {
		Records []repository.SessionRecord `json:"records"`
	}
	if status := getJSON(t, ts.URL+"/patients/p-1/sessions?limit=10", &body); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	records.mu.Lock()
	limit := records.lastLimit
	records.mu.Unlock()
	if len(body.Records) != 1 || body.Records[0].ID != "r-1" || limit != 10 {
		t.Fatalf("unexpected records: %+v (limit %d)", body.Records, limit)
	}

	if status := getJSON(t, ts.URL+"/patients/p-1/sessions?limit=0", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", status)
	}
}

type wsMessage struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Code  string `json:"code"`
	State *struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"state"`
	Session *session.Snapshot `json:"session"`
}

func dialDesk(t *testing.T, ts *httptest.Server, deskID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/desks/" + deskID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	hello := readMessage(t, conn)
	if hello.Kind != "hello" || hello.Session == nil || hello.Session.DeskID != deskID {
		t.Fatalf("unexpected hello: %+v", hello)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// readReply skips events until the reply with the given id arrives.
func readReply(t *testing.T, conn *websocket.Conn, id string, seen func(wsMessage)) wsMessage {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Kind == "reply" && msg.ID == id {
			return msg
		}
		if seen != nil {
			seen(msg)
		}
	}
}

func TestDeskSocket_StartEmitsStateChange(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialDesk(t, ts, "room-1")

	if err := conn.WriteJSON(command{ID: "1", Type: "start"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	sawRunning := false
	check := func(msg wsMessage) {
		if msg.Kind == "state_changed" && msg.State != nil && msg.State.To == "running" {
			sawRunning = true
		}
	}
	r := readReply(t, conn, "1", check)
	if !r.OK {
		t.Fatalf("expected ok reply, got %+v", r)
	}
	// the event may arrive after the reply
	for !sawRunning {
		check(readMessage(t, conn))
	}
}

func TestDeskSocket_ErrorReplies(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialDesk(t, ts, "room-1")

	cases := []struct {
		cmd  command
		code string
	}{
		{command{ID: "a", Type: "pause"}, "invalid_transition"},
		{command{ID: "b", Type: "warp"}, "unknown_command"},
		{command{ID: "c", Type: "visibility"}, "missing_field"},
		{command{ID: "d", Type: "draft_restore", Draft: "intake"}, "no_draft"},
		{command{ID: "e", Type: "draft_touch", Draft: "../x", Fields: map[string]any{"a": 1}}, "unknown_draft"},
		{command{ID: "f", Type: "listen", Listen: boolPtr(true)}, "speech_unsupported"},
		{command{ID: "g", Type: "transcript", Value: "start"}, "not_listening"},
	}
	for _, tc := range cases {
		if err := conn.WriteJSON(tc.cmd); err != nil {
			t.Fatalf("write: %v", err)
		}
		r := readReply(t, conn, tc.cmd.ID, nil)
		if r.OK || r.Code != tc.code {
			t.Fatalf("%s: expected code %s, got %+v", tc.cmd.Type, tc.code, r)
		}
	}
}

func TestDeskSocket_AudioWithoutServerSpeech(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialDesk(t, ts, "room-1")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0xfc, 0xff, 0xfe}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		msg := readMessage(t, conn)
		if msg.Kind != "reply" {
			continue
		}
		if msg.OK || msg.Code != "no_audio_stream" {
			t.Fatalf("unexpected reply: %+v", msg)
		}
		return
	}
}

func TestDeskSocket_VoiceCommandViaHostTranscript(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialDesk(t, ts, "room-1")

	steps := []command{
		{ID: "1", Type: "capabilities", Capabilities: &feedbackCaps},
		{ID: "2", Type: "listen", Listen: boolPtr(true)},
		{ID: "3", Type: "transcript", Value: "please start"},
	}
	for _, cmd := range steps {
		if err := conn.WriteJSON(cmd); err != nil {
			t.Fatalf("write: %v", err)
		}
		if r := readReply(t, conn, cmd.ID, nil); !r.OK {
			t.Fatalf("%s failed: %+v", cmd.Type, r)
		}
	}

	var view sessionView
	getJSON(t, ts.URL+"/desks/room-1/session", &view)
	if view.Session.State != session.StateRunning {
		t.Fatalf("expected running after voice start, got %s", view.Session.State)
	}
}

func boolPtr(b bool) *bool { return &b }

var feedbackCaps = feedback.Capabilities{Audio: true, Speech: true}
