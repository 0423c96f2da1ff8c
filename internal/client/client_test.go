package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemchat/internal/api"
	"gemchat/internal/auth"
	"gemchat/internal/chat"
	"gemchat/internal/config"
	"gemchat/internal/models"
	"gemchat/internal/proxy"
	"gemchat/internal/service/ai"
	"gemchat/internal/service/conversation"
	"gemchat/internal/storage"
)

type scriptedGateway struct {
	missingKey bool
}

func (g *scriptedGateway) Ready() error {
	if g.missingKey {
		return &ai.MissingKeyError{Env: "GEMINI_API_KEY"}
	}
	return nil
}

func (g *scriptedGateway) Chat(ctx context.Context, prompt string) (string, error) {
	if prompt == "Hello" {
		return "Hi there!", nil
	}
	return "echo " + prompt, nil
}

type staticImages struct {
	url string
}

func (s staticImages) Generate(ctx context.Context, prompt string) (*ai.Image, error) {
	return &ai.Image{Text: `I've created an image based on your prompt: "` + prompt + `"`, URL: s.url}, nil
}

func newTestServer(t *testing.T, gw *scriptedGateway, imageURL string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	_, err = storage.Migrate(db)
	require.NoError(t, err)

	authSvc := auth.NewService(db, nil, time.Hour, nil)
	handler := api.NewHandler(conversation.NewService(db, nil, nil), authSvc, nil)
	fn := proxy.New(gw, staticImages{url: imageURL}, config.ProxyConfig{}, nil)
	srv := httptest.NewServer(api.NewRouter(handler, fn, nil))
	t.Cleanup(func() {
		srv.Close()
		db.Close()
	})
	return srv
}

func signIn(t *testing.T, base string) (*Client, *Session) {
	t.Helper()
	c := New(base, nil)
	ctx := context.Background()
	_, err := c.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	sess, err := c.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	return c.WithToken(sess.Token), sess
}

func TestManagerOverHTTP(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, "https://img.example/sunset.png")
	c, sess := signIn(t, srv.URL)
	ctx := context.Background()

	m := chat.New(NewStore(c), NewFunctions(c), chat.WithUserID(sess.UserID))
	require.NoError(t, m.LoadConversations(ctx))
	assert.Empty(t, m.Conversations())

	require.NoError(t, m.Send(ctx, "Hello", false))
	require.NoError(t, m.Send(ctx, "A sunset over mountains", true))

	msgs := m.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Hi there!", msgs[1].Content)
	assert.Empty(t, msgs[1].ImageURL)
	assert.Equal(t, "https://img.example/sunset.png", msgs[3].ImageURL)
	for _, msg := range msgs {
		assert.Equal(t, models.StatusConfirmed, msg.Status)
	}

	// a fresh manager sees exactly the persisted sequence
	fresh := chat.New(NewStore(c), NewFunctions(c), chat.WithUserID(sess.UserID))
	require.NoError(t, fresh.LoadConversations(ctx))
	require.Len(t, fresh.Conversations(), 1)
	require.NoError(t, fresh.SwitchConversation(ctx, fresh.Conversations()[0].ID))
	stored := fresh.Messages()
	require.Len(t, stored, 4)
	for i := range msgs {
		assert.Equal(t, msgs[i].ID, stored[i].ID)
		assert.Equal(t, msgs[i].Content, stored[i].Content)
		assert.Equal(t, msgs[i].ImageURL, stored[i].ImageURL)
	}
}

func TestFunctionsSurfacesServerError(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{missingKey: true}, "")
	c, sess := signIn(t, srv.URL)

	_, err := NewFunctions(c).Respond(context.Background(), "Hello", false)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "GEMINI_API_KEY not configured", apiErr.Message)

	var notes []chat.Notification
	m := chat.New(NewStore(c), NewFunctions(c),
		chat.WithUserID(sess.UserID),
		chat.WithNotifier(chat.NotifierFunc(func(n chat.Notification) { notes = append(notes, n) })),
	)
	err = m.Send(context.Background(), "Hello", false)
	assert.ErrorIs(t, err, chat.ErrResponseFailed)
	require.Len(t, notes, 1)
	assert.Equal(t, "Failed to get response. Please check your API configuration.", notes[0].Message)
	require.Len(t, m.Messages(), 1)
	assert.Equal(t, "Hello", m.Messages()[0].Content)
}

func TestLoginFailure(t *testing.T) {
	srv := newTestServer(t, &scriptedGateway{}, "")
	_, err := New(srv.URL, nil).Login(context.Background(), "nobody", "pw")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestImageReachable(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer broken.Close()

	c := New("http://unused", nil)
	assert.True(t, c.ImageReachable(context.Background(), ok.URL))
	assert.False(t, c.ImageReachable(context.Background(), broken.URL))
	assert.False(t, c.ImageReachable(context.Background(), "::not a url"))
}

func TestFunctionsWireFormat(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"response":"drawn","imageUrl":"https://img.example/x.png"}`)
	}))
	defer srv.Close()

	reply, err := NewFunctions(New(srv.URL, nil).WithToken("tok")).Respond(context.Background(), "a cat", true)
	require.NoError(t, err)
	assert.Equal(t, "/functions/v1/chat-with-gemini", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, map[string]any{"message": "a cat", "generateImage": true}, gotBody)
	assert.Equal(t, "drawn", reply.Response)
	assert.Equal(t, "https://img.example/x.png", reply.ImageURL)
}
