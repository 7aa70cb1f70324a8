package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibe-presenting/server/internal/db"
	"github.com/vibe-presenting/server/internal/models"
	"github.com/vibe-presenting/server/internal/services"
)

type testServer struct {
	*httptest.Server
	db      *sql.DB
	store   *services.SQLiteStore
	rooms   *services.WebSocketService
	remotes *services.RemoteService
}

type serverOptions struct {
	adminToken string
	origins    []string
	media      MediaService
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	database, err := db.InitDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store := services.NewSQLiteStore(database)
	rooms := services.NewWebSocketService(context.Background(), services.ServiceOptions{
		Store:       store,
		Feedback:    store,
		Defaults:    models.DefaultConfig(),
		IdleTimeout: time.Minute,
	})
	t.Cleanup(rooms.Stop)
	remotes := services.NewRemoteService(database)

	router := SetupRoutes(Routes{
		WebSocket:      NewWebSocketHandler(rooms, opts.origins, opts.adminToken),
		Presentations:  NewPresentationHandler(store, rooms),
		Media:          NewMediaHandler(opts.media),
		Remotes:        NewRemoteHandler(rooms, remotes),
		AllowedOrigins: opts.origins,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, db: database, store: store, rooms: rooms, remotes: remotes}
}

// seed stores a three slide deck and makes it the room's presentation
func (ts *testServer) seed(t *testing.T, room string) *models.Presentation {
	t.Helper()
	ctx := context.Background()
	p := &models.Presentation{
		ID:   "p1",
		Name: "Deck",
		Slides: []models.Slide{
			{ID: "intro", Design: models.DesignTitle, Title: "Intro", SpeakerNotes: "secret"},
			{ID: "body", Design: models.DesignOneTextColumn, Title: "Body", MarkdownContent: "- a"},
			{ID: "end", Design: models.DesignTitle, Title: "End"},
		},
		CreatedAt: 1,
		UpdatedAt: 2,
	}
	models.Renumber(p.Slides)
	require.NoError(t, ts.store.SavePresentation(ctx, p))
	require.NoError(t, ts.store.SaveRoom(ctx, &models.RoomState{Room: room, PresentationID: p.ID, Config: models.DefaultConfig()}))
	return p
}

func (ts *testServer) request(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	resp := ts.request(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))
}

func TestPresentationHandlers(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	resp := ts.request(t, http.MethodGet, "/api/presentations", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[ListPresentationsResponse](t, resp)
	assert.True(t, list.Success)
	assert.NotNil(t, list.Presentations)
	assert.Empty(t, list.Presentations)

	ts.seed(t, "main")

	resp = ts.request(t, http.MethodGet, "/api/presentations", "")
	list = decode[ListPresentationsResponse](t, resp)
	require.Len(t, list.Presentations, 1)
	assert.Equal(t, 3, list.Presentations[0].SlideCount)

	resp = ts.request(t, http.MethodGet, "/api/presentations/p1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decode[models.Presentation](t, resp)
	assert.Equal(t, "Deck", p.Name)
	assert.Len(t, p.Slides, 3)

	resp = ts.request(t, http.MethodGet, "/api/presentations/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRoom(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.seed(t, "main")

	resp := ts.request(t, http.MethodGet, "/api/rooms/main", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[models.Snapshot](t, resp)
	assert.Equal(t, "main", snap.Room)
	require.NotNil(t, snap.Presentation)
	assert.Equal(t, "secret", snap.Presentation.Slides[0].SpeakerNotes, "rooms are read as admin")

	resp = ts.request(t, http.MethodGet, "/api/rooms/bad%20room", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
