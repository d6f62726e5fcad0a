package ai

import "context"

// AssistantsAPI операции Assistants API, которые нужны диалогу.
// Ни одна операция не идемпотентна с точки зрения клиента.
type AssistantsAPI interface {
	CreateAssistant(ctx context.Context, spec AssistantSpec) (Assistant, error)
	CreateThread(ctx context.Context, metadata map[string]string) (Thread, error)
	PostMessage(ctx context.Context, threadID, text string) (Message, error)
	StartRun(ctx context.Context, threadID, assistantID, instructions string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (Run, error)
	// ListMessages возвращает первую страницу сообщений треда, новые первыми.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}
