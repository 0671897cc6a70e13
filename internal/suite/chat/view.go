package chat

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/prompts"
	"github.com/bert-suite/server/internal/suite/tools"
	logx "github.com/bert-suite/server/pkg/logger"
)

// Phase is the session lifecycle of a conversational view.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseGreeting   Phase = "greeting"
	PhaseReady      Phase = "ready"
)

// State is the rendered view.
type State struct {
	Phase    Phase               `json:"phase"`
	Messages []model.ChatMessage `json:"messages"`
	Sending  bool                `json:"sending"`
	Title    string              `json:"title,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Config wires a View to its collaborators. Transcripts may be nil.
type Config struct {
	Tool          *tools.Definition
	Opener        model.ChatOpener
	Transcripts   model.TranscriptRepository
	TranscriptKey string
	Notify        model.Notifier
}

// View is the conversational step of one mounted tool. Every mutation is
// tagged with the mount generation; work started under an older generation
// is dropped.
type View struct {
	cfg Config

	mu       sync.Mutex
	gen      uint64
	payload  *model.Payload
	session  model.ChatSession
	phase    Phase
	messages []model.ChatMessage
	sending  bool
	errMsg   string
	closed   bool
}

func NewView(cfg Config) *View {
	return &View{cfg: cfg, phase: PhaseNotStarted}
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *View) stateLocked() State {
	st := State{
		Phase:    v.phase,
		Messages: make([]model.ChatMessage, len(v.messages)),
		Sending:  v.sending,
		Error:    v.errMsg,
	}
	copy(st.Messages, v.messages)
	if v.payload != nil {
		st.Title = v.payload.Title
	}
	return st
}

func (v *View) emit() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	st := v.stateLocked()
	v.mu.Unlock()
	v.cfg.Notify.Notify(model.Event{Kind: model.EventChat, Mode: v.cfg.Tool.Mode, Data: st})
}

// Mount opens a fresh session seeded from payload. Mounting the same payload
// again keeps the current session. A nil payload leaves the view in its
// static missing-data state.
func (v *View) Mount(ctx context.Context, payload *model.Payload) error {
	def := v.cfg.Tool

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "chat is no longer mounted")
	}
	if payload != nil && payload == v.payload && v.session != nil {
		v.mu.Unlock()
		return nil
	}
	v.gen++
	gen := v.gen
	v.payload = payload
	v.session = nil
	v.messages = nil
	v.phase = PhaseNotStarted
	v.sending = false
	v.errMsg = ""
	if payload == nil {
		v.errMsg = def.MissingMessage()
		v.mu.Unlock()
		v.emit()
		return errx.New(errx.ErrMissingPayload, http.StatusConflict, def.MissingMessage())
	}
	v.mu.Unlock()

	v.clearTranscript(ctx)

	session, welcome, greeting, err := v.open(ctx, payload)
	if err != nil {
		logx.Warn().Err(err).Str("mode", def.Mode).Msg("chat session open failed")
		v.mu.Lock()
		if gen == v.gen {
			v.errMsg = def.ErrorReply()
		}
		v.mu.Unlock()
		v.emit()
		return errx.Generation(err, def.ErrorReply())
	}

	v.mu.Lock()
	if v.closed || gen != v.gen {
		v.mu.Unlock()
		return nil
	}
	v.session = session
	var welcomeMsg *model.ChatMessage
	if welcome != "" {
		msg := model.ChatMessage{ID: newID(), Sender: model.SenderAssistant, Text: welcome}
		v.messages = append(v.messages, msg)
		welcomeMsg = &msg
	}
	greetID := ""
	if greeting != "" {
		greetID = newID()
		v.phase = PhaseGreeting
		v.sending = true
		v.messages = append(v.messages, model.ChatMessage{ID: greetID, Sender: model.SenderAssistant, Streaming: true})
	} else {
		v.phase = PhaseReady
	}
	v.mu.Unlock()

	if welcomeMsg != nil {
		v.persist(ctx, schema.AssistantMessage(welcomeMsg.Text, nil))
	}
	v.emit()

	if greetID != "" {
		go func() {
			_ = v.run(ctx, gen, session, greetID, greeting, true)
		}()
	}
	logx.Debug().Str("mode", def.Mode).Bool("greeting", greetID != "").Msg("chat mounted")
	return nil
}

func (v *View) open(ctx context.Context, payload *model.Payload) (model.ChatSession, string, string, error) {
	def := v.cfg.Tool
	system, err := prompts.RenderSystem(ctx, def, payload)
	if err != nil {
		return nil, "", "", err
	}
	seed, err := prompts.RenderSeed(ctx, def, payload)
	if err != nil {
		return nil, "", "", err
	}
	welcome, err := prompts.RenderOptional(ctx, def.Chat.Welcome, payload)
	if err != nil {
		return nil, "", "", err
	}
	greeting, err := prompts.RenderOptional(ctx, def.Chat.Greeting, payload)
	if err != nil {
		return nil, "", "", err
	}
	session, err := v.cfg.Opener.OpenChatSession(ctx, system, seed)
	if err != nil {
		return nil, "", "", err
	}
	return session, welcome, greeting, nil
}

// Send appends the user message and a streaming placeholder, then streams
// the reply into it. Blank text, an in-flight turn or a session that is not
// ready make it a no-op.
func (v *View) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errx.Conflict(errx.ErrInvalidTransition, "chat is no longer mounted")
	}
	if v.payload == nil {
		v.mu.Unlock()
		return errx.New(errx.ErrMissingPayload, http.StatusConflict, v.cfg.Tool.MissingMessage())
	}
	if v.sending || v.phase != PhaseReady || v.session == nil {
		v.mu.Unlock()
		return nil
	}
	gen := v.gen
	session := v.session
	replyID := newID()
	v.messages = append(v.messages,
		model.ChatMessage{ID: newID(), Sender: model.SenderUser, Text: text},
		model.ChatMessage{ID: replyID, Sender: model.SenderAssistant, Streaming: true},
	)
	v.sending = true
	v.mu.Unlock()

	v.persist(ctx, schema.UserMessage(text))
	v.emit()
	return v.run(ctx, gen, session, replyID, text, false)
}

func (v *View) run(ctx context.Context, gen uint64, session model.ChatSession, replyID, text string, greeting bool) error {
	def := v.cfg.Tool
	var full string
	for fragment, err := range session.SendStreaming(ctx, text) {
		if err != nil {
			reply := def.ErrorReply()
			if greeting {
				reply = def.GreetingError()
			}
			logx.Warn().Err(err).Str("mode", def.Mode).Bool("greeting", greeting).Msg("chat stream failed")
			if !v.finish(gen, replyID, reply) {
				return nil
			}
			return errx.Stream(err)
		}
		full = Accumulate(full, fragment)
		if !v.update(gen, replyID, full) {
			return nil
		}
	}

	final := full
	if !greeting && strings.TrimSpace(final) == "" {
		final = def.EmptyReply()
	}
	if !v.current(gen) {
		return nil
	}
	// Persist before releasing the turn so transcripts keep log order.
	if final != "" {
		v.persist(ctx, schema.AssistantMessage(final, nil))
	}
	v.finish(gen, replyID, final)
	return nil
}

func (v *View) current(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.closed && gen == v.gen
}

// update replaces the placeholder text; false once the mount has moved on.
func (v *View) update(gen uint64, id, text string) bool {
	v.mu.Lock()
	if v.closed || gen != v.gen {
		v.mu.Unlock()
		return false
	}
	v.setTextLocked(id, text, true)
	v.mu.Unlock()
	v.emit()
	return true
}

func (v *View) finish(gen uint64, id, text string) bool {
	v.mu.Lock()
	if v.closed || gen != v.gen {
		v.mu.Unlock()
		return false
	}
	v.setTextLocked(id, text, false)
	v.sending = false
	if v.phase == PhaseGreeting {
		v.phase = PhaseReady
	}
	v.mu.Unlock()
	v.emit()
	return true
}

func (v *View) setTextLocked(id, text string, streaming bool) {
	for i := len(v.messages) - 1; i >= 0; i-- {
		if v.messages[i].ID == id {
			v.messages[i].Text = text
			v.messages[i].Streaming = streaming
			return
		}
	}
}

func (v *View) persist(ctx context.Context, msg *schema.Message) {
	if v.cfg.Transcripts == nil || v.cfg.TranscriptKey == "" {
		return
	}
	if err := v.cfg.Transcripts.AddMessage(ctx, v.cfg.TranscriptKey, msg); err != nil {
		logx.Warn().Err(err).Str("session_id", v.cfg.TranscriptKey).Msg("failed to persist chat message")
	}
}

func (v *View) clearTranscript(ctx context.Context) {
	if v.cfg.Transcripts == nil || v.cfg.TranscriptKey == "" {
		return
	}
	if err := v.cfg.Transcripts.ClearTranscript(ctx, v.cfg.TranscriptKey); err != nil {
		logx.Warn().Err(err).Str("session_id", v.cfg.TranscriptKey).Msg("failed to clear transcript")
	}
}

// Close unmounts the view; in-flight streams stop at their next fragment.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.gen++
	v.mu.Unlock()
}

func newID() string {
	return ulid.Make().String()
}
