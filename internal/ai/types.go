package ai

import (
	"strings"
	"time"
)

// Role автор сообщения в треде.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Title возвращает роль с заглавной буквы для вывода ("User", "Assistant").
func (r Role) Title() string {
	s := string(r)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// AssistantSpec параметры создания ассистента.
type AssistantSpec struct {
	Model        string
	Name         string
	Instructions string
}

// Assistant серверная персона: модель + инструкции. Создаётся один раз на процесс.
type Assistant struct {
	ID           string
	Model        string
	Name         string
	Instructions string
}

// Thread серверный контекст диалога.
type Thread struct {
	ID       string
	Metadata map[string]string
}

// ContentBlock одна часть содержимого сообщения. Text заполнен только для блоков типа text.
type ContentBlock struct {
	Type string
	Text string
}

// Message сообщение треда в том виде, в каком его вернул сервис.
type Message struct {
	ID          string
	ThreadID    string
	Role        Role
	Content     []ContentBlock
	AssistantID *string
	RunID       *string
	CreatedAt   time.Time
}

// FirstText текст первого блока; пустая строка, если содержимого нет.
func (m Message) FirstText() string {
	if len(m.Content) == 0 {
		return ""
	}
	return m.Content[0].Text
}

// RunStatus статус запуска. Неизвестные значения сервиса сохраняются как есть.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// Known сообщает, входит ли статус в перечень, известный клиенту.
func (s RunStatus) Known() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusRequiresAction, RunStatusCancelling,
		RunStatusCancelled, RunStatusFailed, RunStatusCompleted, RunStatusIncomplete, RunStatusExpired:
		return true
	}
	return false
}

// Terminal true, если после этого статуса опрос продолжать бессмысленно.
// requires_action тоже считается конечным: обработка вызовов инструментов не поддерживается.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusRequiresAction, RunStatusCancelled,
		RunStatusFailed, RunStatusIncomplete, RunStatusExpired:
		return true
	}
	return false
}

// Run серверное выполнение ассистента над тредом.
type Run struct {
	ID          string
	ThreadID    string
	AssistantID string
	Model       string
	Status      RunStatus
}
