package ai

import (
	"AssistantCLI/internal/ai/aitest"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(t *testing.T, srv *aitest.Server) *AssistantsClient {
	t.Helper()
	oc := NewOpenAIClient(ClientConfig{APIKey: aitest.APIKey, BaseURL: srv.BaseURL()})
	return NewAssistantsClient(&oc, zaptest.NewLogger(t).Sugar())
}

func TestAssistantsClientConversationFlow(t *testing.T) {
	srv := aitest.NewServer()
	defer srv.Close()
	srv.RunStatuses = []string{"in_progress", "completed"}
	srv.Reply = "Hola"

	c := newTestClient(t, srv)
	ctx := context.Background()

	asst, err := c.CreateAssistant(ctx, AssistantSpec{Model: "gpt-3.5-turbo", Name: "MiAsistente", Instructions: "be brief"})
	require.NoError(t, err)
	assert.NotEmpty(t, asst.ID)
	assert.Equal(t, "gpt-3.5-turbo", asst.Model)
	assert.Equal(t, "MiAsistente", asst.Name)
	assert.Equal(t, "be brief", asst.Instructions)

	th, err := c.CreateThread(ctx, map[string]string{"session_id": "s-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, th.ID)
	assert.Equal(t, map[string]string{"session_id": "s-1"}, srv.ThreadMetadata(th.ID))

	msg, err := c.PostMessage(ctx, th.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "Hello", msg.FirstText())
	assert.Nil(t, msg.AssistantID)
	assert.Nil(t, msg.RunID)

	run, err := c.StartRun(ctx, th.ID, asst.ID, "answer as an expert")
	require.NoError(t, err)
	assert.Equal(t, RunStatusQueued, run.Status)
	assert.Equal(t, asst.ID, run.AssistantID)

	run, err = c.GetRun(ctx, th.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusInProgress, run.Status)

	run, err = c.GetRun(ctx, th.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)

	msgs, err := c.ListMessages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// Новые первыми.
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, "Hola", msgs[0].FirstText())
	require.NotNil(t, msgs[0].AssistantID)
	assert.Equal(t, asst.ID, *msgs[0].AssistantID)
	require.NotNil(t, msgs[0].RunID)
	assert.Equal(t, run.ID, *msgs[0].RunID)
	assert.Equal(t, msg.ID, msgs[1].ID)
}

func TestAssistantsClientRequestBodies(t *testing.T) {
	srv := aitest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()

	asst, err := c.CreateAssistant(ctx, AssistantSpec{Model: "gpt-4o", Name: "n", Instructions: "i"})
	require.NoError(t, err)
	th, err := c.CreateThread(ctx, nil)
	require.NoError(t, err)
	_, err = c.PostMessage(ctx, th.ID, "question\n")
	require.NoError(t, err)
	_, err = c.StartRun(ctx, th.ID, asst.ID, "")
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 4)

	for _, r := range reqs {
		assert.Equal(t, "Bearer "+aitest.APIKey, r.Header.Get("Authorization"))
		assert.Equal(t, BetaHeaderValue, r.Header.Get("OpenAI-Beta"))
	}

	assert.Equal(t, "gpt-4o", reqs[0].Body["model"])
	assert.Equal(t, "n", reqs[0].Body["name"])
	assert.Equal(t, "i", reqs[0].Body["instructions"])

	assert.Equal(t, "user", reqs[2].Body["role"])
	assert.Equal(t, "question\n", reqs[2].Body["content"])

	assert.Equal(t, asst.ID, reqs[3].Body["assistant_id"])
	_, hasInstructions := reqs[3].Body["instructions"]
	assert.False(t, hasInstructions, "empty run instructions must not be sent")
}

func TestAssistantsClientCancelRun(t *testing.T) {
	srv := aitest.NewServer()
	defer srv.Close()
	srv.RunStatuses = []string{"in_progress"}

	c := newTestClient(t, srv)
	ctx := context.Background()

	th, err := c.CreateThread(ctx, nil)
	require.NoError(t, err)
	run, err := c.StartRun(ctx, th.ID, "asst_x", "")
	require.NoError(t, err)

	cancelling, err := c.CancelRun(ctx, th.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCancelling, cancelling.Status)

	// Пока запуск не завершён, тред закрыт для новых сообщений.
	_, err = c.PostMessage(ctx, th.ID, "too early")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusBadRequest, de.StatusCode)

	run, err = c.GetRun(ctx, th.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCancelled, run.Status)

	_, err = c.PostMessage(ctx, th.ID, "now")
	require.NoError(t, err)
}

func TestAssistantsClientEmptyContentMessage(t *testing.T) {
	srv := aitest.NewServer()
	defer srv.Close()
	srv.ThreadSeed = []aitest.Seed{{ID: "m0", Role: "assistant"}}

	c := newTestClient(t, srv)
	th, err := c.CreateThread(context.Background(), nil)
	require.NoError(t, err)

	msgs, err := c.ListMessages(context.Background(), th.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].Content)
	assert.Equal(t, "", msgs[0].FirstText())
}

func TestAssistantsClientErrorEnvelopeIsDecodeError(t *testing.T) {
	srv := aitest.NewServer()
	defer srv.Close()
	srv.Fail("POST /v1/threads", http.StatusBadRequest,
		`{"error":{"message":"bad thread","type":"invalid_request_error","param":null,"code":null}}`)

	c := newTestClient(t, srv)
	_, err := c.CreateThread(context.Background(), nil)
	require.Error(t, err)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "create thread", de.Op)
	assert.Equal(t, http.StatusBadRequest, de.StatusCode)

	var apiErr *openai.Error
	assert.ErrorAs(t, err, &apiErr)
	assert.True(t, IsFatal(err))

	// Повторов нет: ровно один запрос.
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/threads"))
}

func TestAssistantsClientWrongKeyIsDecodeError(t *testing.T) {
	srv := aitest.NewServer()
	defer srv.Close()

	oc := NewOpenAIClient(ClientConfig{APIKey: "sk-wrong", BaseURL: srv.BaseURL()})
	c := NewAssistantsClient(&oc, nil)

	_, err := c.CreateAssistant(context.Background(), AssistantSpec{Model: "gpt-3.5-turbo"})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusUnauthorized, de.StatusCode)
}

func TestAssistantsClientMissingIDIsDecodeError(t *testing.T) {
	srv := aitest.NewServer()
	defer srv.Close()
	srv.Fail("POST /v1/assistants", http.StatusOK, `{"object":"assistant"}`)

	c := newTestClient(t, srv)
	_, err := c.CreateAssistant(context.Background(), AssistantSpec{Model: "gpt-3.5-turbo"})

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, errMissingID)
}

func TestAssistantsClientTransportError(t *testing.T) {
	srv := aitest.NewServer()
	base := srv.BaseURL()
	srv.Close()

	oc := NewOpenAIClient(ClientConfig{APIKey: aitest.APIKey, BaseURL: base, RequestTimeout: 2 * time.Second})
	c := NewAssistantsClient(&oc, zaptest.NewLogger(t).Sugar())

	_, err := c.CreateThread(context.Background(), nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "create thread", te.Op)
	assert.True(t, IsFatal(err))
}

func TestAssistantsClientValidatesArguments(t *testing.T) {
	c := NewAssistantsClient(nil, nil)
	_, err := c.CreateThread(context.Background(), nil)
	assert.Error(t, err)
	assert.False(t, IsFatal(err))

	oc := NewOpenAIClient(ClientConfig{APIKey: aitest.APIKey})
	c = NewAssistantsClient(&oc, nil)
	_, err = c.PostMessage(context.Background(), "", "hi")
	assert.Error(t, err)
	_, err = c.StartRun(context.Background(), "thread", "", "")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))

	err := classify("op", context.DeadlineExceeded)
	var te *TransportError
	assert.ErrorAs(t, err, &te)

	err = classify("op", errors.New("unexpected end of JSON input"))
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "op: decode")
}

func TestAssistantsClientFailureIsNotLoggedAsError(t *testing.T) {
	srv := aitest.NewServer()
	defer srv.Close()
	srv.Fail("POST /v1/threads", http.StatusInternalServerError,
		`{"error":{"message":"boom","type":"server_error","param":null,"code":null}}`)

	core, logs := observer.New(zap.DebugLevel)
	oc := NewOpenAIClient(ClientConfig{APIKey: aitest.APIKey, BaseURL: srv.BaseURL()})
	c := NewAssistantsClient(&oc, zap.New(core).Sugar())

	_, err := c.CreateThread(context.Background(), nil)
	require.Error(t, err)

	// Ошибка возвращается вызывающему, который и сообщает о ней пользователю.
	assert.Zero(t, logs.FilterLevelExact(zap.ErrorLevel).Len())
	assert.Equal(t, 1, logs.FilterMessage("OpenAI request failed").Len())
}
