package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/internal/domain/collab"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/auth"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/memory"
)

const (
	mentorID   shared.UserID = "mentor-1"
	menteeID   shared.UserID = "mentee-1"
	outsiderID shared.UserID = "outsider"
)

type testEnv struct {
	srv      *httptest.Server
	store    *memory.Store
	hub      *Hub
	resolver *auth.JWTResolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	store.PutMentorship(&collab.Mentorship{SessionID: "s-1", MentorID: mentorID, MenteeID: menteeID, ClassroomLink: "https://meet.example/a"})
	store.PutMentorship(&collab.Mentorship{SessionID: "s-2", MentorID: "mentor-2", MenteeID: "mentee-2"})

	resolver, err := auth.NewJWTResolver("test-secret")
	require.NoError(t, err)

	hub := NewHub(store, store, HubOptions{})
	mux := http.NewServeMux()
	mux.Handle("GET /ws/{"+SessionParam+"}", NewHandler(hub, resolver, store, nil))

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return &testEnv{srv: srv, store: store, hub: hub, resolver: resolver}
}

func (e *testEnv) dial(t *testing.T, session string, user shared.UserID) *websocket.Conn {
	t.Helper()
	conn, err := e.dialRaw(t, session, e.token(t, user))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (e *testEnv) dialRaw(t *testing.T, session, token string) (*websocket.Conn, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/" + session + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

func (e *testEnv) token(t *testing.T, user shared.UserID) string {
	t.Helper()
	tok, err := e.resolver.Issue(user, shared.RoleMentee, time.Hour)
	require.NoError(t, err)
	return tok
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": msgType, "data": data}))
}

// expectSilence leaves conn unusable; call it last.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", raw)
	var ne net.Error
	require.True(t, errors.As(err, &ne) && ne.Timeout(), "expected timeout, got %v", err)
}

func TestHub_InitGoesToJoinerOnly(t *testing.T) {
	env := newTestEnv(t)

	mentor := env.dial(t, "s-1", mentorID)
	init := readFrame(t, mentor)
	assert.Equal(t, "init", init.Type)

	var data collab.InitData
	require.NoError(t, json.Unmarshal(init.Data, &data))
	assert.Equal(t, "", data.Code)
	assert.Equal(t, collab.DefaultLanguage, data.Language)
	assert.Equal(t, "https://meet.example/a", data.ClassroomLink)

	mentee := env.dial(t, "s-1", menteeID)
	assert.Equal(t, "init", readFrame(t, mentee).Type)
	assert.Equal(t, 2, env.hub.Participants("s-1"))

	expectSilence(t, mentor)
}

func TestHub_CodeUpdateRelayedToOthers(t *testing.T) {
	env := newTestEnv(t)

	mentor := env.dial(t, "s-1", mentorID)
	readFrame(t, mentor)
	mentee := env.dial(t, "s-1", menteeID)
	readFrame(t, mentee)

	send(t, mentee, "code_update", map[string]string{"code": "print(1)"})

	f := readFrame(t, mentor)
	require.Equal(t, "code_update", f.Type)
	var data collab.CodeData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "print(1)", data.Code)
	assert.Equal(t, menteeID.String(), data.UserID)

	st, err := env.store.LoadOrCreate(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", st.Code)

	expectSilence(t, mentee)
}

func TestHub_SessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)

	a := env.dial(t, "s-1", mentorID)
	readFrame(t, a)
	b := env.dial(t, "s-2", "mentee-2")
	readFrame(t, b)

	send(t, a, "language_update", map[string]string{"language": "go"})

	require.Eventually(t, func() bool {
		st, err := env.store.LoadOrCreate(context.Background(), "s-1")
		return err == nil && st.Language == "go"
	}, 2*time.Second, 10*time.Millisecond)

	expectSilence(t, b)
}

func TestHub_ClassroomLinkOnlyFromMentor(t *testing.T) {
	env := newTestEnv(t)

	mentor := env.dial(t, "s-1", mentorID)
	readFrame(t, mentor)
	mentee := env.dial(t, "s-1", menteeID)
	readFrame(t, mentee)

	// Ignored: the next frame the mentor sees is the code update.
	send(t, mentee, "classroom_link", map[string]string{"link": "https://evil.example"})
	send(t, mentee, "code_update", map[string]string{"code": "x = 1"})
	assert.Equal(t, "code_update", readFrame(t, mentor).Type)

	m, err := env.store.GetMentorship(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example/a", m.ClassroomLink)

	send(t, mentor, "classroom_link", map[string]string{"link": "https://meet.example/b"})
	for _, conn := range []*websocket.Conn{mentor, mentee} {
		f := readFrame(t, conn)
		require.Equal(t, "classroom_link", f.Type)
		var data collab.LinkData
		require.NoError(t, json.Unmarshal(f.Data, &data))
		assert.Equal(t, "https://meet.example/b", data.Link)
	}

	m, err = env.store.GetMentorship(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example/b", m.ClassroomLink)
}

func TestHub_MalformedFramesDropped(t *testing.T) {
	env := newTestEnv(t)

	mentor := env.dial(t, "s-1", mentorID)
	readFrame(t, mentor)
	mentee := env.dial(t, "s-1", menteeID)
	readFrame(t, mentee)

	require.NoError(t, mentee.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, mentee, "unknown", map[string]string{})
	send(t, mentee, "code_update", map[string]int{"code": 5})
	send(t, mentee, "code_update", map[string]string{"code": "ok"})

	f := readFrame(t, mentor)
	require.Equal(t, "code_update", f.Type)
	var data collab.CodeData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "ok", data.Code)
}

func TestHub_RejectsWithPolicyViolation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		session string
		token   string
	}{
		{"bad token", "s-1", "garbage"},
		{"missing token", "s-1", ""},
		{"not a participant", "s-1", env.token(t, outsiderID)},
		{"unknown session", "s-404", env.token(t, mentorID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := env.dialRaw(t, tt.session, tt.token)
			require.NoError(t, err)
			defer conn.Close()

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			_, _, err = conn.ReadMessage()
			assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
		})
	}
	assert.Equal(t, 0, env.hub.RoomCount())
}

func TestHub_RoomDroppedWhenEmptyAndStateReloaded(t *testing.T) {
	env := newTestEnv(t)

	mentor := env.dial(t, "s-1", mentorID)
	readFrame(t, mentor)
	send(t, mentor, "code_update", map[string]string{"code": "saved"})

	require.Eventually(t, func() bool {
		st, err := env.store.LoadOrCreate(context.Background(), "s-1")
		return err == nil && st.Code == "saved"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, mentor.Close())
	require.Eventually(t, func() bool { return env.hub.RoomCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	again := env.dial(t, "s-1", menteeID)
	f := readFrame(t, again)
	var data collab.InitData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, "saved", data.Code)
}

func TestCloseCode(t *testing.T) {
	assert.Equal(t, websocket.ClosePolicyViolation, closeCode(shared.ErrInvalidToken))
	assert.Equal(t, websocket.ClosePolicyViolation, closeCode(shared.ErrNotParticipant))
	assert.Equal(t, websocket.ClosePolicyViolation, closeCode(shared.ErrSessionNotFound))
	assert.Equal(t, websocket.CloseInternalServerErr, closeCode(shared.ErrStorageUnavailable))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{PongWait: 10 * time.Second, PingPeriod: 20 * time.Second}.withDefaults()
	assert.Equal(t, 9*time.Second, cfg.PingPeriod)
	assert.Equal(t, DefaultConfig().SendBuffer, cfg.SendBuffer)
}
