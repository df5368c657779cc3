package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-gg/wheelhouse/internal/hub"
	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

func newTestServer(t *testing.T) (*Server, *Game) {
	t.Helper()

	logger := zerolog.New(io.Discard)
	mClock := quartz.NewMock(t)

	var sched *round.Scheduler
	h := hub.New(logger, mClock,
		hub.WithSnapshot(func() round.Event { return sched.SnapshotEvent() }),
	)
	sched = round.NewScheduler(logger, mClock, round.Config{
		Game: "wheel",
		Kind: round.KindFixedPhase,
	}, h)

	// Cancelled context: the first round starts, the tick loop doesn't.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sched.Run(ctx))

	game := &Game{Name: "wheel", Scheduler: sched, Hub: h}
	return NewServer(logger, game), game
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func postJSON(t *testing.T, ts *httptest.Server, path, body string, out interface{}) *http.Response {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSnapshotEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var snap round.Snapshot
	resp := getJSON(t, ts, "/games/wheel/rounds/current", &snap)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, round.PhaseBetting, snap.Phase)
	assert.NotEmpty(t, snap.RoundID)
	assert.NotEmpty(t, snap.CommitmentHash)
	assert.Empty(t, snap.Secret)

	// The unprefixed route aliases the first game.
	var alias round.Snapshot
	getJSON(t, ts, "/api/rounds/current", &alias)
	assert.Equal(t, snap.RoundID, alias.RoundID)

	var errResp ErrorData
	resp = getJSON(t, ts, "/games/baccarat/rounds/current", &errResp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "game_not_found", errResp.Code)
}

func TestBetEndpoint(t *testing.T) {
	s, game := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	roundID := game.Scheduler.Snapshot().RoundID

	var ack BetAckData
	resp := postJSON(t, ts, "/games/wheel/rounds/"+roundID+"/bets",
		`{"participant_id": "alice"}`, &ack)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, roundID, ack.RoundID)
	assert.NotEmpty(t, ack.BetID, "bet id is minted when omitted")

	var errResp ErrorData
	resp = postJSON(t, ts, "/games/wheel/rounds/stale-round/bets",
		`{"participant_id": "alice"}`, &errResp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "round_not_found", errResp.Code)

	resp = postJSON(t, ts, "/games/wheel/rounds/"+roundID+"/bets", `{}`, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Close betting, then a late bet is rejected.
	_, err := game.Scheduler.TriggerAdvance("alice")
	require.NoError(t, err)
	resp = postJSON(t, ts, "/games/wheel/rounds/"+roundID+"/bets",
		`{"participant_id": "bob"}`, &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_phase", errResp.Code)
}

func TestAdvanceEndpoint(t *testing.T) {
	s, game := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	roundID := game.Scheduler.Snapshot().RoundID

	var ack AdvanceAckData
	resp := postJSON(t, ts, "/games/wheel/rounds/advance", `{"participant_id": "alice"}`, &ack)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "advancing", ack.Status)
	assert.Equal(t, roundID, ack.RoundID, "ack names the round acted on")

	// The second caller loses the race but still gets a 200, naming the
	// round that is already moving.
	resp = postJSON(t, ts, "/games/wheel/rounds/advance", `{"participant_id": "bob"}`, &ack)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "already_advancing", ack.Status)
	assert.Equal(t, roundID, ack.RoundID)
}

func TestVerifyEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	secret := "0123456789abcdef"
	hash := round.HashSecret(secret)

	var resp verifyResponse
	r := getJSON(t, ts, "/api/verify?secret="+secret+"&hash="+hash, &resp)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.True(t, resp.HashMatches)

	r = getJSON(t, ts, "/api/verify?secret="+secret+"&hash=deadbeef", &resp)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.False(t, resp.HashMatches)

	// With the game parameters the outcome is recomputed too.
	r = getJSON(t, ts, "/api/verify?secret="+secret+"&hash="+hash+
		"&kind=fixed_phase&round_id=r-1&sequence=7&slots=37", &resp)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	require.NotNil(t, resp.Outcome)

	expected := round.WheelStrategy{Slots: 37}.Settle(secret, round.PublicInputs{RoundID: "r-1", Sequence: 7})
	assert.Equal(t, expected, *resp.Outcome)
}

func TestWebSocketSession(t *testing.T) {
	s, game := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/games/wheel/ws?participant=alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage := func() Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	// Welcome and the current-round snapshot arrive first, in either order.
	got := map[MessageType]Message{}
	for i := 0; i < 2; i++ {
		msg := readMessage()
		got[msg.Type] = msg
	}
	require.Contains(t, got, MessageTypeWelcome)
	require.Contains(t, got, MessageTypeEvent)

	var snap round.Event
	require.NoError(t, json.Unmarshal(got[MessageTypeEvent].Data, &snap))
	assert.Equal(t, round.EventSnapshot, snap.Type)
	assert.Equal(t, round.PhaseBetting, snap.Phase)

	// Place a bet over the socket.
	bet, err := NewMessage(MessageTypePlaceBet, PlaceBetData{RoundID: snap.RoundID})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(bet))

	msg := readMessage()
	require.Equal(t, MessageTypeBetAck, msg.Type)
	var ack BetAckData
	require.NoError(t, json.Unmarshal(msg.Data, &ack))
	assert.Equal(t, snap.RoundID, ack.RoundID)
	assert.NotEmpty(t, ack.BetID)

	// The registered bet is visible in the scheduler.
	assert.Equal(t, 1, game.Scheduler.Snapshot().Bets)
}
