package chat

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/repo"
	"github.com/bert-suite/server/internal/suite/tools"
)

type turn struct {
	fragments []string
	err       error
	gate      chan struct{}
}

// fakeSession plays scripted turns in order. A turn with a gate blocks
// after its first fragment until the gate is closed.
type fakeSession struct {
	mu    sync.Mutex
	turns []turn
	sent  []string
}

func (s *fakeSession) SendStreaming(_ context.Context, text string) iter.Seq2[string, error] {
	s.mu.Lock()
	s.sent = append(s.sent, text)
	var t turn
	if len(s.turns) > 0 {
		t, s.turns = s.turns[0], s.turns[1:]
	}
	s.mu.Unlock()

	return func(yield func(string, error) bool) {
		for i, frag := range t.fragments {
			if !yield(frag, nil) {
				return
			}
			if i == 0 && t.gate != nil {
				<-t.gate
			}
		}
		if t.err != nil {
			yield("", t.err)
		}
	}
}

func (s *fakeSession) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fakeOpener struct {
	mu      sync.Mutex
	session *fakeSession
	err     error
	opens   int
	system  string
	seed    []*schema.Message
}

func (o *fakeOpener) OpenChatSession(_ context.Context, system string, seed []*schema.Message) (model.ChatSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	o.system = system
	o.seed = seed
	if o.err != nil {
		return nil, o.err
	}
	return o.session, nil
}

func lookup(t *testing.T, mode string) *tools.Definition {
	t.Helper()
	reg, err := tools.Default()
	require.NoError(t, err)
	def, err := reg.Lookup(mode)
	require.NoError(t, err)
	return def
}

func docPayload() *model.Payload {
	return &model.Payload{
		Tool:   "DOCUBERT",
		Title:  "Zero Trust",
		Input:  map[string]string{"text": "zero trust paper"},
		Result: json.RawMessage(`{"title":"Zero Trust","abstract":"a","keyTopics":[],"takeaways":[]}`),
	}
}

func newView(t *testing.T, mode string, opener *fakeOpener, transcripts model.TranscriptRepository) *View {
	t.Helper()
	return NewView(Config{
		Tool:          lookup(t, mode),
		Opener:        opener,
		Transcripts:   transcripts,
		TranscriptKey: "shell-1:" + mode,
	})
}

func TestAccumulate(t *testing.T) {
	full := ""
	for _, frag := range []string{"Hel", "lo", " world"} {
		full = Accumulate(full, frag)
	}
	assert.Equal(t, "Hello world", full)
}

func TestSend_StreamsIntoPlaceholder(t *testing.T) {
	sess := &fakeSession{turns: []turn{{fragments: []string{"Hel", "lo", " world"}}}}
	transcripts := repo.NewMemoryTranscriptRepository()
	v := newView(t, "DOCUBERT", &fakeOpener{session: sess}, transcripts)

	require.NoError(t, v.Mount(context.Background(), docPayload()))
	assert.Equal(t, PhaseReady, v.State().Phase)

	require.NoError(t, v.Send(context.Background(), "  summarize  "))

	st := v.State()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, model.SenderUser, st.Messages[0].Sender)
	assert.Equal(t, "summarize", st.Messages[0].Text)
	assert.Equal(t, model.SenderAssistant, st.Messages[1].Sender)
	assert.Equal(t, "Hello world", st.Messages[1].Text)
	assert.False(t, st.Messages[1].Streaming)
	assert.False(t, st.Sending)
	assert.NotEqual(t, st.Messages[0].ID, st.Messages[1].ID)

	tr, err := transcripts.LoadTranscript(context.Background(), "shell-1:DOCUBERT")
	require.NoError(t, err)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "Hello world", tr.Messages[1].Content)
}

func TestSend_EmptyReplyFallback(t *testing.T) {
	sess := &fakeSession{turns: []turn{{fragments: []string{"  "}}}}
	v := newView(t, "DOCUBERT", &fakeOpener{session: sess}, nil)
	require.NoError(t, v.Mount(context.Background(), docPayload()))

	require.NoError(t, v.Send(context.Background(), "hello?"))
	msgs := v.State().Messages
	assert.Equal(t, lookup(t, "DOCUBERT").EmptyReply(), msgs[1].Text)
}

func TestSend_ErrorReplacesPlaceholder(t *testing.T) {
	sess := &fakeSession{turns: []turn{
		{fragments: []string{"partial"}, err: errors.New("quota exceeded")},
		{fragments: []string{"recovered"}},
	}}
	v := newView(t, "DOCUBERT", &fakeOpener{session: sess}, nil)
	require.NoError(t, v.Mount(context.Background(), docPayload()))

	err := v.Send(context.Background(), "first")
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrStreamFailed)
	msgs := v.State().Messages
	assert.Equal(t, tools.DefaultErrorReply, msgs[1].Text)
	assert.False(t, v.State().Sending)

	require.NoError(t, v.Send(context.Background(), "second"), "session stays usable")
	msgs = v.State().Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "recovered", msgs[3].Text)
}

func TestSend_SingleInFlight(t *testing.T) {
	gate := make(chan struct{})
	sess := &fakeSession{turns: []turn{{fragments: []string{"a", "b"}, gate: gate}}}
	v := newView(t, "DOCUBERT", &fakeOpener{session: sess}, nil)
	require.NoError(t, v.Mount(context.Background(), docPayload()))

	done := make(chan error, 1)
	go func() { done <- v.Send(context.Background(), "one") }()
	require.Eventually(t, func() bool {
		msgs := v.State().Messages
		return len(msgs) == 2 && msgs[1].Text == "a"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, v.Send(context.Background(), "two"))
	assert.Len(t, v.State().Messages, 2, "second send is ignored while streaming")

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"one"}, sess.sentTexts())
	assert.Equal(t, "ab", v.State().Messages[1].Text)
}

func TestSend_BlankIsNoop(t *testing.T) {
	sess := &fakeSession{}
	v := newView(t, "DOCUBERT", &fakeOpener{session: sess}, nil)
	require.NoError(t, v.Mount(context.Background(), docPayload()))

	require.NoError(t, v.Send(context.Background(), "   "))
	assert.Empty(t, v.State().Messages)
	assert.Empty(t, sess.sentTexts())
}

func TestMount_NilPayloadShowsMissing(t *testing.T) {
	opener := &fakeOpener{session: &fakeSession{}}
	v := newView(t, "DOCUBERT", opener, nil)

	err := v.Mount(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrMissingPayload)

	def := lookup(t, "DOCUBERT")
	assert.Equal(t, def.MissingMessage(), v.State().Error)
	assert.ErrorIs(t, v.Send(context.Background(), "hi"), errx.ErrMissingPayload)
	assert.Equal(t, 0, opener.opens)
}

func TestMount_SeedsSession(t *testing.T) {
	opener := &fakeOpener{session: &fakeSession{}}
	v := newView(t, "DOCUBERT", opener, nil)
	require.NoError(t, v.Mount(context.Background(), docPayload()))

	assert.NotEmpty(t, opener.system)
	require.NotEmpty(t, opener.seed)
	assert.Contains(t, opener.seed[0].Content, "zero trust paper")
}

func TestMount_SamePayloadKeepsSession(t *testing.T) {
	opener := &fakeOpener{session: &fakeSession{turns: []turn{{fragments: []string{"ok"}}}}}
	v := newView(t, "DOCUBERT", opener, nil)
	p := docPayload()

	require.NoError(t, v.Mount(context.Background(), p))
	require.NoError(t, v.Send(context.Background(), "hi"))
	require.NoError(t, v.Mount(context.Background(), p))
	assert.Equal(t, 1, opener.opens)
	assert.Len(t, v.State().Messages, 2)

	require.NoError(t, v.Mount(context.Background(), docPayload()))
	assert.Equal(t, 2, opener.opens)
	assert.Empty(t, v.State().Messages, "a new payload reference clears the log")
}

func TestMount_OpenFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("no key")}
	v := newView(t, "DOCUBERT", opener, nil)

	err := v.Mount(context.Background(), docPayload())
	assert.ErrorIs(t, err, errx.ErrGenerationFailed)
	assert.Equal(t, PhaseNotStarted, v.State().Phase)
	assert.NoError(t, v.Send(context.Background(), "hi"))
	assert.Empty(t, v.State().Messages)
}

func TestMount_Welcome(t *testing.T) {
	opener := &fakeOpener{session: &fakeSession{}}
	v := newView(t, "ROBERTA", opener, nil)
	p := &model.Payload{
		Tool:   "ROBERTA",
		Title:  "Ada",
		Input:  map[string]string{"resume": "r"},
		Result: json.RawMessage(`{"contactInfo":{"name":"Ada"},"summary":"s","workExperience":[],"education":[],"skills":[]}`),
	}
	require.NoError(t, v.Mount(context.Background(), p))

	st := v.State()
	assert.Equal(t, PhaseReady, st.Phase)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, model.SenderAssistant, st.Messages[0].Sender)
	assert.Contains(t, st.Messages[0].Text, "Hello, Ada!")
	assert.Empty(t, opener.session.sentTexts(), "welcome lines are never sent")
}

func bartPayload() *model.Payload {
	return &model.Payload{
		Tool:   "BARTHOLOMEW",
		Title:  "The Hanseatic League",
		Input:  map[string]string{"topic": "hansa"},
		Result: json.RawMessage(`{"topic":"The Hanseatic League","summary":"s","keyFigures":[],"timeline":[],"researchQuestions":[]}`),
	}
}

func TestMount_GreetingRunsOnce(t *testing.T) {
	gate := make(chan struct{})
	sess := &fakeSession{turns: []turn{
		{fragments: []string{"Welcome, ", "student."}, gate: gate},
		{fragments: []string{"Indeed."}},
	}}
	v := newView(t, "BARTHOLOMEW", &fakeOpener{session: sess}, nil)
	require.NoError(t, v.Mount(context.Background(), bartPayload()))

	require.Eventually(t, func() bool { return v.State().Phase == PhaseGreeting && len(sess.sentTexts()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, v.Send(context.Background(), "too early"))
	assert.Len(t, sess.sentTexts(), 1, "sends are ignored during the greeting")

	close(gate)
	require.Eventually(t, func() bool { return v.State().Phase == PhaseReady }, time.Second, 5*time.Millisecond)

	st := v.State()
	require.Len(t, st.Messages, 1, "the greeting prompt itself is not shown")
	assert.Equal(t, "Welcome, student.", st.Messages[0].Text)
	assert.Contains(t, sess.sentTexts()[0], "The Hanseatic League")

	require.NoError(t, v.Send(context.Background(), "Who led it?"))
	assert.Len(t, v.State().Messages, 3)
}

func TestMount_GreetingFailure(t *testing.T) {
	sess := &fakeSession{turns: []turn{{err: errors.New("offline")}}}
	v := newView(t, "BARTHOLOMEW", &fakeOpener{session: sess}, nil)
	require.NoError(t, v.Mount(context.Background(), bartPayload()))

	require.Eventually(t, func() bool { return v.State().Phase == PhaseReady }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "An error occurred while starting the session.", v.State().Messages[0].Text)
}

func TestClose_DropsLateFragments(t *testing.T) {
	gate := make(chan struct{})
	sess := &fakeSession{turns: []turn{{fragments: []string{"first", "late"}, gate: gate}}}
	v := newView(t, "DOCUBERT", &fakeOpener{session: sess}, nil)
	require.NoError(t, v.Mount(context.Background(), docPayload()))

	done := make(chan error, 1)
	go func() { done <- v.Send(context.Background(), "q") }()
	require.Eventually(t, func() bool {
		msgs := v.State().Messages
		return len(msgs) == 2 && msgs[1].Text == "first"
	}, time.Second, 5*time.Millisecond)

	v.Close()
	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, "first", v.State().Messages[1].Text)
	assert.ErrorIs(t, v.Send(context.Background(), "again"), errx.ErrInvalidTransition)
}
