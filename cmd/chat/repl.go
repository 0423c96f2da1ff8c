package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"gemchat/internal/chat"
	"gemchat/internal/models"
)

const helpText = `commands:
  <text>            send a message
  /image <prompt>   generate an image
  /new              start a new chat
  /list             list conversations
  /switch <n|id>    open a conversation
  /try <n>          send a suggested prompt
  /quit             exit`

const imageFailedNotice = "Image failed to load. The service might be temporarily unavailable."

type suggestion struct {
	title  string
	prompt string
	image  bool
}

// suggestions are offered while the chat is empty.
var suggestions = []suggestion{
	{"Write a story", "Write a short creative story about a time traveler who discovers they can only travel to moments of great kindness.", false},
	{"Generate an image", "A futuristic city at sunset with flying cars and neon lights", true},
	{"Explain a concept", "Explain quantum computing in simple terms that a 10-year-old could understand.", false},
	{"Creative writing", "Help me brainstorm creative ideas for a mobile app that helps people form new habits.", false},
}

// imageChecker reports whether an image URL can be loaded.
type imageChecker interface {
	ImageReachable(ctx context.Context, url string) bool
}

type repl struct {
	in      io.Reader
	out     io.Writer
	images  imageChecker
	manager *chat.Manager

	user      *color.Color
	assistant *color.Color
	success   *color.Color
	failure   *color.Color
	dim       *color.Color
}

func newREPL(in io.Reader, out io.Writer, images imageChecker) *repl {
	return &repl{
		in:        in,
		out:       out,
		images:    images,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgMagenta, color.Bold),
		success:   color.New(color.FgGreen),
		failure:   color.New(color.FgRed),
		dim:       color.New(color.Faint),
	}
}

func (r *repl) notify(n chat.Notification) {
	if n.Level == chat.LevelError {
		r.failure.Fprintf(r.out, "! %s\n", n.Message)
		return
	}
	r.success.Fprintf(r.out, "* %s\n", n.Message)
}

// run reads commands until EOF, /quit or ctx is done. Each line is handled to
// completion before the next is read, so input waits while a reply is pending.
func (r *repl) run(ctx context.Context) error {
	_ = r.manager.LoadConversations(ctx)
	r.printSidebar()
	fmt.Fprintln(r.out, helpText)
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if quit := r.handle(ctx, scanner.Text()); quit {
			return nil
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
		r.printWelcome()
	case "/new":
		r.manager.StartNewChat()
		r.printWelcome()
	case "/try":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(suggestions) {
			r.failure.Fprintf(r.out, "! no suggestion %q\n", arg)
			return false
		}
		s := suggestions[n-1]
		r.send(ctx, s.prompt, s.image)
	case "/list":
		_ = r.manager.LoadConversations(ctx)
		r.printSidebar()
	case "/switch":
		id, ok := r.resolveConversation(arg)
		if !ok {
			r.failure.Fprintf(r.out, "! no conversation %q\n", arg)
			return false
		}
		if err := r.manager.SwitchConversation(ctx, id); err == nil {
			r.printMessages(ctx)
		}
	case "/image":
		r.send(ctx, arg, true)
	default:
		r.send(ctx, strings.TrimSpace(line), false)
	}
	return false
}

func (r *repl) send(ctx context.Context, content string, image bool) {
	if strings.TrimSpace(content) == "" {
		return
	}
	r.dim.Fprintln(r.out, "thinking...")
	// failures are reported through notify
	_ = r.manager.Send(ctx, content, image)
	r.printMessages(ctx)
}

// resolveConversation accepts a 1-based index into the sidebar or an id.
func (r *repl) resolveConversation(arg string) (string, bool) {
	convs := r.manager.Conversations()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(convs) {
			return "", false
		}
		return convs[n-1].ID, true
	}
	for _, c := range convs {
		if c.ID == arg {
			return c.ID, true
		}
	}
	return "", false
}

func (r *repl) printSidebar() {
	convs := r.manager.Conversations()
	if len(convs) == 0 {
		r.dim.Fprintln(r.out, "no conversations yet")
		return
	}
	active := r.manager.ActiveConversationID()
	for i, c := range convs {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %d. %s  (%s)\n", marker, i+1, c.Title, c.UpdatedAt.Local().Format("Jan 2 15:04"))
	}
}

// printWelcome lists the suggested prompts when the active chat is empty.
func (r *repl) printWelcome() {
	if len(r.manager.Messages()) > 0 {
		return
	}
	fmt.Fprintln(r.out, "Chat with AI, generate images, and explore creative possibilities. Try one:")
	for i, s := range suggestions {
		kind := "text"
		if s.image {
			kind = "image"
		}
		fmt.Fprintf(r.out, "  /try %d  %s (%s)\n", i+1, s.title, kind)
	}
}

func (r *repl) printMessages(ctx context.Context) {
	msgs := r.manager.Messages()
	if len(msgs) == 0 {
		r.printWelcome()
		return
	}
	for _, m := range msgs {
		r.printMessage(ctx, m)
	}
}

func (r *repl) printMessage(ctx context.Context, m models.Message) {
	label := r.user
	name := "you"
	if m.Role == models.RoleAssistant {
		label = r.assistant
		name = "assistant"
	}
	label.Fprintf(r.out, "%s", name)
	r.dim.Fprintf(r.out, " %s", m.CreatedAt.Local().Format("15:04"))
	if m.Status == models.StatusUnconfirmed {
		r.failure.Fprint(r.out, " (not saved)")
	}
	fmt.Fprintf(r.out, "\n%s\n", m.Content)
	if m.ImageURL == "" {
		return
	}
	if r.images != nil && !r.images.ImageReachable(ctx, m.ImageURL) {
		r.failure.Fprintln(r.out, imageFailedNotice)
		return
	}
	fmt.Fprintf(r.out, "[image] %s\n", m.ImageURL)
}
