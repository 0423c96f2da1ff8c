// Package client speaks the server's HTTP API on behalf of one user. Store
// and Functions plug into chat.Manager.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gemchat/internal/chat"
	"gemchat/internal/models"
)

// APIError carries the server's {error} text and status code.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Client is a thin JSON client bound to a base URL and, after login, a token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// WithToken returns a copy authenticated with a bearer token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Session is the result of a successful login.
type Session struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"auth_token"`
}

// Register creates an account and returns the new user id.
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	return out.ID, err
}

// Login returns the user's id and a fresh token.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("login response missing token")
	}
	return &out, nil
}

// Logout revokes the current token.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Store implements chat.Store over the REST API.
type Store struct {
	c *Client
}

func NewStore(c *Client) *Store {
	return &Store{c: c}
}

var _ chat.Store = (*Store)(nil)

func (s *Store) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (s *Store) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	var out models.Conversation
	if err := s.c.do(ctx, http.MethodPost, "/api/conversations", map[string]string{"title": title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) TouchConversation(ctx context.Context, conversationID string) error {
	return s.c.do(ctx, http.MethodPatch, "/api/conversations/"+url.PathEscape(conversationID), nil, nil)
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (s *Store) AddMessage(ctx context.Context, conversationID string, msg models.Message) (*models.Message, error) {
	body := map[string]string{
		"id":      msg.ID,
		"content": msg.Content,
		"role":    string(msg.Role),
	}
	if msg.ImageURL != "" {
		body["image_url"] = msg.ImageURL
	}
	var out models.Message
	if err := s.c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(conversationID)+"/messages", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Functions implements chat.Responder over the chat function.
type Functions struct {
	c *Client
}

func NewFunctions(c *Client) *Functions {
	return &Functions{c: c}
}

var _ chat.Responder = (*Functions)(nil)

func (f *Functions) Respond(ctx context.Context, prompt string, generateImage bool) (*chat.Reply, error) {
	var out chat.Reply
	if err := f.c.do(ctx, http.MethodPost, models.ChatFunctionPath, models.ChatRequest{
		Message:       prompt,
		GenerateImage: generateImage,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImageReachable reports whether an image URL answers with a 2xx status.
func (c *Client) ImageReachable(ctx context.Context, imageURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
