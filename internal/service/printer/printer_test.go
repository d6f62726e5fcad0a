package printer

import (
	"AssistantCLI/internal/ai"
	"AssistantCLI/internal/service/seen"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func msg(id string, role ai.Role, texts ...string) ai.Message {
	m := ai.Message{ID: id, Role: role}
	for _, t := range texts {
		m.Content = append(m.Content, ai.ContentBlock{Type: "text", Text: t})
	}
	return m
}

func TestPrintOldestFirstAndOnce(t *testing.T) {
	var out bytes.Buffer
	p := New(&out)
	set := seen.New()

	// Сервис отдаёт новые первыми.
	batch := []ai.Message{
		msg("m2", ai.RoleAssistant, "Hi!"),
		msg("m1", ai.RoleUser, "Hello"),
	}
	printed := p.Print(batch, set)
	assert.Len(t, printed, 2)
	assert.Equal(t, "User: Hello\nAssistant: Hi!\n", out.String())

	out.Reset()
	batch = append([]ai.Message{msg("m3", ai.RoleAssistant, "Bye")}, batch...)
	printed = p.Print(batch, set)
	assert.Len(t, printed, 1)
	assert.Equal(t, "Assistant: Bye\n", out.String())

	out.Reset()
	assert.Empty(t, p.Print(batch, set))
	assert.Empty(t, out.String())
	assert.Equal(t, []string{"m1", "m2", "m3"}, set.IDs())
}

func TestPrintEachIDExactlyOnceAcrossBatches(t *testing.T) {
	var out bytes.Buffer
	p := New(&out)
	set := seen.New()

	batches := [][]string{
		{"c", "b", "a"},
		{"d", "c", "b", "a"},
		{"d", "c"},
		{"f", "e", "d"},
	}
	var order []string
	for _, ids := range batches {
		msgs := make([]ai.Message, 0, len(ids))
		for _, id := range ids {
			msgs = append(msgs, msg(id, ai.RoleAssistant, id))
		}
		for _, m := range p.Print(msgs, set) {
			order = append(order, m.ID)
		}
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, order)
}

func TestPrintSkipsAlreadySeen(t *testing.T) {
	var out bytes.Buffer
	p := New(&out)
	set := seen.New()
	set.Add("m1")

	p.Print([]ai.Message{msg("m2", ai.RoleUser, "Hello"), msg("m1", ai.RoleAssistant, "old")}, set)
	assert.Equal(t, "User: Hello\n", out.String())
}

func TestPrintFirstBlockOnlyAndEmptyContent(t *testing.T) {
	var out bytes.Buffer
	p := New(&out)

	p.Print([]ai.Message{
		msg("m2", ai.RoleAssistant),
		msg("m1", ai.RoleAssistant, "first", "second"),
	}, seen.New())
	assert.Equal(t, "Assistant: first\nAssistant: \n", out.String())
}

func TestNewNilWriter(t *testing.T) {
	p := New(nil)
	assert.Len(t, p.Print([]ai.Message{msg("x", ai.RoleUser, "hi")}, seen.New()), 1)
}
