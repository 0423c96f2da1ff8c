package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"gemchat/internal/config"
)

const (
	DefaultImageEndpoint     = "https://image.pollinations.ai/prompt/"
	placeholderBase          = "https://via.placeholder.com/400x300/6366f1/ffffff?text="
	imageDescriptionFallback = "Generated image description"
)

// Image is the reply to an image-mode prompt.
type Image struct {
	Text string
	URL  string
}

// ImageStrategy turns a prompt into reply text plus an image URL.
type ImageStrategy interface {
	Generate(ctx context.Context, prompt string) (*Image, error)
}

// Completer is the part of Gateway the describe strategy needs.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)
}

// NewImageStrategy picks the strategy named in cfg.
func NewImageStrategy(cfg config.ProxyConfig, gw Completer, logger *zap.Logger) (ImageStrategy, error) {
	switch cfg.ImageStrategy {
	case "", config.ImageStrategyDirect:
		return NewDirectImage(cfg.ImageEndpoint, cfg.ImageProbeTimeout, logger), nil
	case config.ImageStrategyDescribe:
		return &DescribeImage{gateway: gw}, nil
	default:
		return nil, fmt.Errorf("unknown image strategy %q", cfg.ImageStrategy)
	}
}

// PlaceholderURL encodes the first 20 characters of the prompt.
func PlaceholderURL(prompt string) string {
	r := []rune(prompt)
	if len(r) > 20 {
		r = r[:20]
	}
	return placeholderBase + strings.ReplaceAll(url.QueryEscape(string(r)), "+", "%20")
}

func createdText(prompt string) string {
	return `I've created an image based on your prompt: "` + prompt + `"`
}

// DirectImage builds a URL on a free image endpoint keyed by the prompt and
// falls back to the placeholder when the endpoint does not answer.
type DirectImage struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

func NewDirectImage(endpoint string, timeout time.Duration, logger *zap.Logger) *DirectImage {
	if endpoint == "" {
		endpoint = DefaultImageEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectImage{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      logger,
	}
}

func (d *DirectImage) imageURL(prompt string) string {
	return d.endpoint + url.PathEscape(prompt) + "?width=512&height=512&nologo=true"
}

func (d *DirectImage) Generate(ctx context.Context, prompt string) (*Image, error) {
	img := &Image{Text: createdText(prompt), URL: d.imageURL(prompt)}
	if err := d.probe(ctx, img.URL); err != nil {
		d.log.Warn("image endpoint unreachable, using placeholder", zap.Error(err))
		img.URL = PlaceholderURL(prompt)
	}
	return img, nil
}

func (d *DirectImage) probe(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("image endpoint status %d", resp.StatusCode)
	}
	return nil
}

// DescribeImage asks the gateway for a vivid description and pairs it with
// the placeholder image.
type DescribeImage struct {
	gateway Completer
}

func (d *DescribeImage) Generate(ctx context.Context, prompt string) (*Image, error) {
	ask := `Generate a detailed, creative image description based on this prompt: "` + prompt + `". Make it vivid and detailed.`
	desc, err := d.gateway.Complete(ctx, ask, TextTemperature, ImageMaxTokens)
	if err != nil {
		return nil, err
	}
	if desc == "" {
		desc = imageDescriptionFallback
	}
	return &Image{
		Text: createdText(prompt) + ". " + desc,
		URL:  PlaceholderURL(prompt),
	}, nil
}
