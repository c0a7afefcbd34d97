package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"smarthome/internal/models"
	"smarthome/internal/service"
	"smarthome/internal/stream"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func startStreamServer(t *testing.T, s *service.Service, hub *stream.Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newTestRouter(s, WithStream(hub, 8)))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, token string) string {
	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

// waitSubscribers blocks until the hub has n live subscribers.
func waitSubscribers(t *testing.T, hub *stream.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, hub.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_StreamsOnlyVisibleAppliances(t *testing.T) {
	hub := stream.NewHub()
	defer hub.Close()
	auth := &mockAuth{parseID: 7}
	homes := &mockHomes{homes: []models.Home{{ID: 1}, {ID: 2}}}
	// Appliance 8 sits in home 2, but the user holds no grant on it.
	appliances := &mockAppliances{visible: []int64{5, 6}}
	srv := startStreamServer(t, &service.Service{Authorization: auth, Homes: homes, Appliances: appliances}, hub)

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(srv, "jwt-token"), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	hello := readEnvelope(t, conn)
	if hello.Type != wsTypeHello {
		t.Fatalf("expected hello, got %+v", hello)
	}
	var h wsHello
	_ = json.Unmarshal(hello.Data, &h)
	if h.UserID != 7 || len(h.HomeIDs) != 2 || h.HomeIDs[0] != 1 || h.HomeIDs[1] != 2 {
		t.Fatalf("unexpected hello: %+v", h)
	}

	waitSubscribers(t, hub, 1)
	at := time.Date(2024, 6, 3, 7, 30, 0, 0, time.UTC)
	// Home 9 is not the user's; it must be filtered out.
	hub.Publish(models.StreamMessage{Kind: models.KindState, HomeID: 9, Event: models.ApplianceEvent{ID: 100, ApplianceID: 5}, OccurredAt: at})
	hub.Publish(models.StreamMessage{
		Kind:       models.KindState,
		HomeID:     2,
		Appliance:  &models.Appliance{ID: 8, HomeID: 2, Name: "Safe", Status: models.StatusOn},
		Event:      models.ApplianceEvent{ID: 99, ApplianceID: 8, Status: models.StatusOn},
		OccurredAt: at,
	})
	hub.Publish(models.StreamMessage{Kind: models.KindTelemetry, HomeID: 2, Event: models.ApplianceEvent{ID: 98, ApplianceID: 8, Status: models.StatusData}, OccurredAt: at})
	hub.Publish(models.StreamMessage{
		Kind:       models.KindState,
		HomeID:     2,
		Appliance:  &models.Appliance{ID: 5, HomeID: 2, Status: models.StatusOn},
		Event:      models.ApplianceEvent{ID: 101, ApplianceID: 5, Status: models.StatusOn},
		OccurredAt: at,
	})
	hub.Publish(models.StreamMessage{Kind: models.KindTelemetry, HomeID: 1, Event: models.ApplianceEvent{ID: 102, ApplianceID: 6, Status: models.StatusData}, OccurredAt: at})

	env := readEnvelope(t, conn)
	if env.Type != models.KindState {
		t.Fatalf("expected state message, got %+v", env)
	}
	var msg models.StreamMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Event.ID != 101 || msg.Appliance == nil || !msg.Appliance.IsOn() {
		t.Fatalf("unexpected message: %+v", msg)
	}

	env = readEnvelope(t, conn)
	if env.Type != models.KindTelemetry {
		t.Fatalf("expected telemetry message, got %+v", env)
	}
	if err := json.Unmarshal(env.Data, &msg); err != nil || msg.Event.ID != 102 {
		t.Fatalf("expected telemetry event 102, got %+v (err=%v)", msg, err)
	}
}

func TestWebSocket_MemberWithoutGrantGetsNothing(t *testing.T) {
	hub := stream.NewHub()
	defer hub.Close()
	srv := startStreamServer(t, &service.Service{
		Authorization: &mockAuth{parseID: 7},
		Homes:         &mockHomes{homes: []models.Home{{ID: 1}}},
		Appliances:    &mockAppliances{visible: []int64{}},
	}, hub)

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(srv, "jwt-token"), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	_ = readEnvelope(t, conn)
	waitSubscribers(t, hub, 1)

	at := time.Date(2024, 6, 3, 7, 30, 0, 0, time.UTC)
	hub.Publish(models.StreamMessage{
		Kind:       models.KindState,
		HomeID:     1,
		Appliance:  &models.Appliance{ID: 3, HomeID: 1, Status: models.StatusOn, TotalUsageMs: 5000},
		Event:      models.ApplianceEvent{ID: 1, ApplianceID: 3, Status: models.StatusOn},
		OccurredAt: at,
	})
	hub.Publish(models.StreamMessage{Kind: models.KindTelemetry, HomeID: 1, Event: models.ApplianceEvent{ID: 2, ApplianceID: 3, Status: models.StatusData}, OccurredAt: at})

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var env envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("expected no message for an ungranted appliance, got %+v", env)
	}
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	hub := stream.NewHub()
	defer hub.Close()
	auth := &mockAuth{parseErr: service.ErrInvalidToken}
	srv := startStreamServer(t, &service.Service{Authorization: auth, Homes: &mockHomes{}}, hub)

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	_, resp, err := dialer.Dial(wsURL(srv, "expired"), nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}

	_, resp, err = dialer.Dial(wsURL(srv, ""), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got err=%v resp=%+v", err, resp)
	}
	if hub.Len() != 0 {
		t.Fatalf("rejected clients must not subscribe")
	}
}

func TestWebSocket_HubCloseEndsStream(t *testing.T) {
	hub := stream.NewHub()
	srv := startStreamServer(t, &service.Service{
		Authorization: &mockAuth{parseID: 7},
		Homes:         &mockHomes{homes: []models.Home{{ID: 1}}},
		Appliances:    &mockAppliances{visible: []int64{3}},
	}, hub)

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(srv, "jwt-token"), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = readEnvelope(t, conn)
	waitSubscribers(t, hub, 1)
	hub.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}

func TestWebSocket_DisabledWithoutHub(t *testing.T) {
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 7}})
	w := do(r, http.MethodGet, "/ws?token=x", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
