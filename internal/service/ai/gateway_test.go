package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemchat/internal/config"
)

type fakeModel struct {
	reply     string
	err       error
	lastInput []*schema.Message
	lastOpts  *model.Options
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.lastInput = input
	f.lastOpts = model.GetCommonOptions(nil, opts...)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func envWith(values map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := values[k]
		return v, ok
	}
}

func newFakeGateway(fm *fakeModel, env map[string]string, builds *int32) *Gateway {
	return NewGateway("gemini", config.ProviderConfig{Model: "gemini-1.5-flash", APIKeyEnv: "GEMINI_API_KEY"},
		WithEnvLookup(envWith(env)),
		WithModelFactory(func(ctx context.Context, provider string, cfg config.ProviderConfig, apiKey string) (model.BaseChatModel, error) {
			if builds != nil {
				atomic.AddInt32(builds, 1)
			}
			return fm, nil
		}),
	)
}

func TestGatewayMissingKey(t *testing.T) {
	gw := newFakeGateway(&fakeModel{}, map[string]string{}, nil)
	_, err := gw.Chat(context.Background(), "Hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, "GEMINI_API_KEY not configured", err.Error())
}

func TestGatewayChatOptionsAndFallback(t *testing.T) {
	fm := &fakeModel{reply: "Hi there!"}
	gw := newFakeGateway(fm, map[string]string{"GEMINI_API_KEY": "k1"}, nil)

	got, err := gw.Chat(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", got)
	require.Len(t, fm.lastInput, 1)
	assert.Equal(t, schema.User, fm.lastInput[0].Role)
	assert.Equal(t, "Hello", fm.lastInput[0].Content)
	require.NotNil(t, fm.lastOpts.Temperature)
	assert.InDelta(t, 0.7, *fm.lastOpts.Temperature, 1e-6)
	require.NotNil(t, fm.lastOpts.MaxTokens)
	assert.Equal(t, 2048, *fm.lastOpts.MaxTokens)

	fm.reply = "   "
	got, err = gw.Chat(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, got)

	fm.err = errors.New("quota exceeded")
	_, err = gw.Chat(context.Background(), "Hello")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestGatewayCachesModelPerKey(t *testing.T) {
	var builds int32
	env := map[string]string{"GEMINI_API_KEY": "k1"}
	gw := newFakeGateway(&fakeModel{reply: "ok"}, env, &builds)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := gw.Model(ctx)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&builds))

	env["GEMINI_API_KEY"] = "k2"
	_, err := gw.Model(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&builds))
}

func TestNewChatModelRejectsUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), "llama", config.ProviderConfig{}, "k")
	assert.ErrorContains(t, err, "invalid provider")
}

func TestDirectImageReachable(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath() + "?" + r.URL.RawQuery
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	strategy := NewDirectImage(srv.URL+"/prompt", time.Second, nil)
	img, err := strategy.Generate(context.Background(), "A sunset over mountains")
	require.NoError(t, err)
	assert.Equal(t, `I've created an image based on your prompt: "A sunset over mountains"`, img.Text)
	assert.Equal(t, srv.URL+"/prompt/A%20sunset%20over%20mountains?width=512&height=512&nologo=true", img.URL)
	assert.Equal(t, "/prompt/A%20sunset%20over%20mountains?width=512&height=512&nologo=true", gotPath)
}

func TestDirectImageFallsBackToPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	strategy := NewDirectImage(srv.URL, time.Second, nil)
	img, err := strategy.Generate(context.Background(), "A sunset over mountains")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderURL("A sunset over mountains"), img.URL)
	assert.True(t, strings.HasPrefix(img.URL, "https://via.placeholder.com/400x300/6366f1/ffffff?text="))
}

func TestPlaceholderURLTruncates(t *testing.T) {
	assert.Equal(t,
		"https://via.placeholder.com/400x300/6366f1/ffffff?text=A%20sunset%20over%20mount",
		PlaceholderURL("A sunset over mountains"))
	assert.Equal(t,
		"https://via.placeholder.com/400x300/6366f1/ffffff?text=cats%20%26%20dogs",
		PlaceholderURL("cats & dogs"))
}

func TestDescribeImage(t *testing.T) {
	fm := &fakeModel{reply: "A glowing orange sky."}
	gw := newFakeGateway(fm, map[string]string{"GEMINI_API_KEY": "k"}, nil)
	strategy, err := NewImageStrategy(config.ProxyConfig{ImageStrategy: config.ImageStrategyDescribe}, gw, nil)
	require.NoError(t, err)

	img, err := strategy.Generate(context.Background(), "sunset")
	require.NoError(t, err)
	assert.Equal(t, `I've created an image based on your prompt: "sunset". A glowing orange sky.`, img.Text)
	assert.Equal(t, PlaceholderURL("sunset"), img.URL)
	require.NotNil(t, fm.lastOpts.MaxTokens)
	assert.Equal(t, 1000, *fm.lastOpts.MaxTokens)
	assert.Contains(t, fm.lastInput[0].Content, `"sunset"`)

	fm.reply = ""
	img, err = strategy.Generate(context.Background(), "sunset")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(img.Text, "Generated image description"))
}

func TestNewImageStrategyUnknown(t *testing.T) {
	_, err := NewImageStrategy(config.ProxyConfig{ImageStrategy: "dall-e"}, nil, nil)
	assert.Error(t, err)
}
