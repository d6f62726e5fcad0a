package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

// BetaHeaderValue версия beta-поверхности Assistants API.
const BetaHeaderValue = "assistants=v2"

// ClientConfig параметры подключения к OpenAI.
type ClientConfig struct {
	APIKey string
	// BaseURL пустой: используется адрес по умолчанию (https://api.openai.com/v1/).
	BaseURL string
	// RequestTimeout 0: без ограничения на отдельный запрос.
	RequestTimeout time.Duration
}

// NewOpenAIClient создаёт клиента SDK. Встроенные повторы отключены: запросы не идемпотентны.
func NewOpenAIClient(cfg ClientConfig) openai.Client {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHeader("OpenAI-Beta", BetaHeaderValue),
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	return openai.NewClient(opts...)
}

// AssistantsClient реализует AssistantsAPI через OpenAI Assistants (Threads).
type AssistantsClient struct {
	client *openai.Client
	logger *zap.SugaredLogger
}

// NewAssistantsClient создаёт клиента поверх готового клиента SDK.
func NewAssistantsClient(client *openai.Client, logger *zap.SugaredLogger) *AssistantsClient {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AssistantsClient{client: client, logger: logger}
}

var _ AssistantsAPI = (*AssistantsClient)(nil)

func (c *AssistantsClient) CreateAssistant(ctx context.Context, spec AssistantSpec) (Assistant, error) {
	const op = "create assistant"
	if c.client == nil {
		return Assistant{}, errors.New("nil openai client")
	}

	params := openai.BetaAssistantNewParams{
		Model: openai.ChatModel(spec.Model),
	}
	if spec.Name != "" {
		params.Name = openai.String(spec.Name)
	}
	if spec.Instructions != "" {
		params.Instructions = openai.String(spec.Instructions)
	}

	start := time.Now()
	asst, err := c.client.Beta.Assistants.New(ctx, params)
	if err != nil {
		c.logger.Debugw("OpenAI request failed", "op", op, "duration", time.Since(start).String(), "error", err)
		return Assistant{}, classify(op, err)
	}
	if asst.ID == "" {
		return Assistant{}, &DecodeError{Op: op, Err: errMissingID}
	}
	c.logger.Debugw("Assistant created", "assistant_id", asst.ID, "model", asst.Model, "duration", time.Since(start).String())

	return Assistant{
		ID:           asst.ID,
		Model:        asst.Model,
		Name:         asst.Name,
		Instructions: asst.Instructions,
	}, nil
}

func (c *AssistantsClient) CreateThread(ctx context.Context, metadata map[string]string) (Thread, error) {
	const op = "create thread"
	if c.client == nil {
		return Thread{}, errors.New("nil openai client")
	}

	params := openai.BetaThreadNewParams{}
	if len(metadata) > 0 {
		params.Metadata = shared.Metadata(metadata)
	}

	th, err := c.client.Beta.Threads.New(ctx, params)
	if err != nil {
		c.logger.Debugw("OpenAI request failed", "op", op, "error", err)
		return Thread{}, classify(op, err)
	}
	if th.ID == "" {
		return Thread{}, &DecodeError{Op: op, Err: errMissingID}
	}
	c.logger.Debugw("Thread created", "thread_id", th.ID)

	return Thread{ID: th.ID, Metadata: map[string]string(th.Metadata)}, nil
}

func (c *AssistantsClient) PostMessage(ctx context.Context, threadID, text string) (Message, error) {
	const op = "post message"
	if c.client == nil {
		return Message{}, errors.New("nil openai client")
	}
	if threadID == "" {
		return Message{}, errors.New("empty thread id")
	}

	msg, err := c.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		c.logger.Debugw("OpenAI request failed", "op", op, "thread_id", threadID, "error", err)
		return Message{}, classify(op, err)
	}
	if msg.ID == "" {
		return Message{}, &DecodeError{Op: op, Err: errMissingID}
	}
	c.logger.Debugw("Message posted", "thread_id", threadID, "message_id", msg.ID)

	return convertMessage(*msg), nil
}

func (c *AssistantsClient) StartRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error) {
	const op = "start run"
	if c.client == nil {
		return Run{}, errors.New("nil openai client")
	}
	if threadID == "" {
		return Run{}, errors.New("empty thread id")
	}
	if assistantID == "" {
		return Run{}, errors.New("assistant is not initialized")
	}

	params := openai.BetaThreadRunNewParams{AssistantID: assistantID}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	run, err := c.client.Beta.Threads.Runs.New(ctx, threadID, params)
	if err != nil {
		c.logger.Debugw("OpenAI request failed", "op", op, "thread_id", threadID, "error", err)
		return Run{}, classify(op, err)
	}
	if run.ID == "" {
		return Run{}, &DecodeError{Op: op, Err: errMissingID}
	}
	c.logger.Debugw("Run started", "thread_id", threadID, "run_id", run.ID, "status", run.Status)

	return convertRun(*run), nil
}

func (c *AssistantsClient) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	const op = "get run"
	if c.client == nil {
		return Run{}, errors.New("nil openai client")
	}

	run, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		c.logger.Debugw("OpenAI request failed", "op", op, "thread_id", threadID, "run_id", runID, "error", err)
		return Run{}, classify(op, err)
	}
	if run.ID == "" {
		return Run{}, &DecodeError{Op: op, Err: errMissingID}
	}
	return convertRun(*run), nil
}

func (c *AssistantsClient) CancelRun(ctx context.Context, threadID, runID string) (Run, error) {
	const op = "cancel run"
	if c.client == nil {
		return Run{}, errors.New("nil openai client")
	}

	run, err := c.client.Beta.Threads.Runs.Cancel(ctx, threadID, runID)
	if err != nil {
		c.logger.Debugw("OpenAI request failed", "op", op, "thread_id", threadID, "run_id", runID, "error", err)
		return Run{}, classify(op, err)
	}
	if run.ID == "" {
		return Run{}, &DecodeError{Op: op, Err: errMissingID}
	}
	c.logger.Infow("Run cancelled", "thread_id", threadID, "run_id", run.ID, "status", run.Status)
	return convertRun(*run), nil
}

func (c *AssistantsClient) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	const op = "list messages"
	if c.client == nil {
		return nil, errors.New("nil openai client")
	}

	// Только первая страница; курсор не используется.
	page, err := c.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{})
	if err != nil {
		c.logger.Debugw("OpenAI request failed", "op", op, "thread_id", threadID, "error", err)
		return nil, classify(op, err)
	}

	out := make([]Message, 0, len(page.Data))
	for _, m := range page.Data {
		if m.ID == "" {
			return nil, &DecodeError{Op: op, Err: errMissingID}
		}
		out = append(out, convertMessage(m))
	}
	return out, nil
}

func convertMessage(m openai.Message) Message {
	content := make([]ContentBlock, 0, len(m.Content))
	for _, c := range m.Content {
		block := ContentBlock{Type: c.Type}
		if c.Type == "text" {
			block.Text = c.Text.Value
		}
		content = append(content, block)
	}

	out := Message{
		ID:       m.ID,
		ThreadID: m.ThreadID,
		Role:     Role(m.Role),
		Content:  content,
	}
	if m.AssistantID != "" {
		id := m.AssistantID
		out.AssistantID = &id
	}
	if m.RunID != "" {
		id := m.RunID
		out.RunID = &id
	}
	if m.CreatedAt > 0 {
		out.CreatedAt = time.Unix(m.CreatedAt, 0)
	}
	return out
}

func convertRun(r openai.Run) Run {
	return Run{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Model:       r.Model,
		Status:      RunStatus(r.Status),
	}
}
