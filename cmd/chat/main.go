// Command chat is a terminal client for the gemchat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"gemchat/internal/chat"
	"gemchat/internal/client"
)

func main() {
	_ = godotenv.Load()

	baseURL := envOr("GEMCHAT_URL", "http://localhost:8090")
	username := os.Getenv("GEMCHAT_USER")
	password := os.Getenv("GEMCHAT_PASSWORD")
	if username == "" || password == "" {
		color.Red("GEMCHAT_USER and GEMCHAT_PASSWORD must be set")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(baseURL, &http.Client{Timeout: 2 * time.Minute})
	sess, err := c.Login(ctx, username, password)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		// first run: create the account
		if _, err = c.Register(ctx, username, password); err == nil {
			sess, err = c.Login(ctx, username, password)
		}
	}
	if err != nil {
		color.Red("sign in failed: %v", err)
		os.Exit(1)
	}
	authed := c.WithToken(sess.Token)

	r := newREPL(os.Stdin, os.Stdout, authed)
	r.manager = chat.New(
		client.NewStore(authed),
		client.NewFunctions(authed),
		chat.WithUserID(sess.UserID),
		chat.WithNotifier(chat.NotifierFunc(r.notify)),
	)
	fmt.Fprintf(r.out, "signed in as %s\n", sess.Username)
	runErr := r.run(ctx)

	logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := authed.Logout(logoutCtx); err != nil {
		color.Yellow("logout: %v", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		color.Red("%v", runErr)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
