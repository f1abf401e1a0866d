// Package dispatch exercises the full alert path through the assembled HTTP
// surface: configure a zone, connect a WebSocket, post an alert, and watch
// the push and the notification record arrive.
package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/alert"
	alerthandler "vigil/internal/alert/handler"
	"vigil/internal/fanout"
	"vigil/internal/geo"
	"vigil/internal/identity"
	"vigil/internal/jwttoken"
	"vigil/internal/notification"
	notificationhandler "vigil/internal/notification/handler"
	"vigil/internal/registry"
	httptransport "vigil/internal/transport/http"
	"vigil/internal/ws"
	"vigil/internal/zone"
	zonehandler "vigil/internal/zone/handler"
)

type env struct {
	server *httptest.Server
	jwt    *jwttoken.JWTService
	users  *identity.InMemoryStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := identity.NewInMemoryStore()
	resolver := identity.NewResolver(users)
	presence := registry.New(registry.WithLogger(logger))
	zones := zone.New(zone.NewInMemoryStore())
	notifications := notification.New(notification.NewInMemoryStore())
	engine := fanout.New(zones, geo.NewMatcher(), notifications, presence, fanout.WithLogger(logger))
	alerts := alert.New(alert.NewInMemoryStore(), engine, resolver)
	jwtService := jwttoken.NewJWTService("integration-test-key", "vigil")

	router := httptransport.NewRouter(nil,
		alerthandler.New(alerts, logger, jwtService),
		zonehandler.New(zones, logger, jwtService),
		notificationhandler.New(notifications, logger, nil, jwtService),
		ws.New(resolver, presence, logger),
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &env{server: server, jwt: jwtService, users: users}
}

func (e *env) addUser(t *testing.T, email string) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	require.NoError(t, e.users.Create(context.Background(), &identity.User{
		ID:          id,
		Email:       email,
		DisplayName: strings.Split(email, "@")[0],
	}))
	token, err := e.jwt.GenerateAccessToken(id, email, time.Hour)
	require.NoError(t, err)
	return id, token
}

func (e *env) doJSON(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(payload))
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *env) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/alerts"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(payload, &frame))
	return frame
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAlertReachesZoneResidents(t *testing.T) {
	env := newEnv(t)

	_, reporterToken := env.addUser(t, "reporter@example.com")
	_, residentToken := env.addUser(t, "resident@example.com")

	// Resident watches a 5km zone around the city center.
	resp := env.doJSON(t, http.MethodPost, "/api/zones", residentToken, map[string]any{
		"latitude": 10.0, "longitude": -75.0, "radiusMeters": 5000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Resident is connected and registered.
	conn := env.dialWS(t)
	require.Equal(t, "CONNECTION_ESTABLISHED", readFrame(t, conn)["type"])
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"REGISTER","userId":"resident@example.com"}`)))
	require.Equal(t, "REGISTERED", readFrame(t, conn)["type"])

	// Reporter posts an alert 1.1km from the zone center.
	resp = env.doJSON(t, http.MethodPost, "/api/alerts", reporterToken, map[string]any{
		"category":    "robbery",
		"title":       "Robbery in progress",
		"description": "Corner of 5th and Main",
		"latitude":    10.01,
		"longitude":   -75.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode(t, resp)
	assert.Equal(t, float64(1), created["notifiedUsers"])

	// The resident's socket gets the push.
	frame := readFrame(t, conn)
	require.Equal(t, "NEW_ALERT", frame["event"])
	assert.Equal(t, "Robbery in progress", frame["alertTitle"])
	assert.Equal(t, "ROBBERY", frame["alertCategory"])
	assert.Equal(t, "reporter", frame["createdByUserName"])

	// The ledger record stays QUEUED until the client acknowledges; the
	// push itself moves nothing.
	resp = env.doJSON(t, http.MethodGet, "/api/notifications/me", residentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode(t, resp)
	items := page["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "QUEUED", item["status"])
	assert.Equal(t, created["id"], item["alertId"])

	// Client acknowledgement drives the transition.
	id := item["id"].(string)
	resp = env.doJSON(t, http.MethodPut, "/api/notifications/"+id+"/sent", residentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SENT", decode(t, resp)["status"])
}

func TestOfflineResidentGetsQueuedRecord(t *testing.T) {
	env := newEnv(t)

	_, reporterToken := env.addUser(t, "reporter@example.com")
	_, residentToken := env.addUser(t, "offline@example.com")

	resp := env.doJSON(t, http.MethodPost, "/api/zones", residentToken, map[string]any{
		"latitude": 10.0, "longitude": -75.0, "radiusMeters": 5000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPost, "/api/alerts", reporterToken, map[string]any{
		"category": "fire", "title": "Fire", "latitude": 10.0, "longitude": -75.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.doJSON(t, http.MethodGet, "/api/notifications/me", residentToken, nil)
	page := decode(t, resp)
	items := page["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "QUEUED", items[0].(map[string]any)["status"])

	// Resident acknowledges later, straight from QUEUED.
	id := items[0].(map[string]any)["id"].(string)
	resp = env.doJSON(t, http.MethodPut, "/api/notifications/"+id+"/delivered", residentToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DELIVERED", decode(t, resp)["status"])
}

func TestReporterNeverNotifiesThemselves(t *testing.T) {
	env := newEnv(t)

	_, reporterToken := env.addUser(t, "reporter@example.com")

	// The reporter's own zone covers the alert location.
	resp := env.doJSON(t, http.MethodPost, "/api/zones", reporterToken, map[string]any{
		"latitude": 10.0, "longitude": -75.0, "radiusMeters": 5000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPost, "/api/alerts", reporterToken, map[string]any{
		"category": "fire", "title": "Fire", "latitude": 10.0, "longitude": -75.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(0), decode(t, resp)["notifiedUsers"])

	resp = env.doJSON(t, http.MethodGet, "/api/notifications/me", reporterToken, nil)
	page := decode(t, resp)
	assert.Empty(t, page["items"])
}

func TestAnonymousAlertHidesReporter(t *testing.T) {
	env := newEnv(t)

	_, reporterToken := env.addUser(t, "reporter@example.com")
	_, residentToken := env.addUser(t, "resident@example.com")

	resp := env.doJSON(t, http.MethodPost, "/api/zones", residentToken, map[string]any{
		"latitude": 10.0, "longitude": -75.0, "radiusMeters": 5000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn := env.dialWS(t)
	readFrame(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"REGISTER","userId":"resident@example.com"}`)))
	readFrame(t, conn)

	resp = env.doJSON(t, http.MethodPost, "/api/alerts", reporterToken, map[string]any{
		"category": "assault", "title": "Assault", "latitude": 10.0, "longitude": -75.0,
		"anonymous": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	frame := readFrame(t, conn)
	require.Equal(t, "NEW_ALERT", frame["event"])
	assert.Contains(t, frame, "createdByUserName")
	assert.Nil(t, frame["createdByUserName"])
}
