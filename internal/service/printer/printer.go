package printer

import (
	"AssistantCLI/internal/ai"
	"AssistantCLI/internal/service/seen"
	"fmt"
	"io"
)

// Printer выводит ещё не показанные сообщения в виде "Role: text".
type Printer struct {
	out io.Writer
}

func New(out io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	return &Printer{out: out}
}

// Print принимает список в порядке сервиса (новые первыми) и идёт от старых к новым.
// Каждый новый id попадает в set и печатается ровно один раз; берётся только первый блок
// содержимого, сообщение без содержимого печатается с пустым текстом.
// Возвращает напечатанные сообщения в порядке вывода.
func (p *Printer) Print(messages []ai.Message, set *seen.Set) []ai.Message {
	printed := make([]ai.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if !set.Add(m.ID) {
			continue
		}
		_, _ = fmt.Fprintf(p.out, "%s: %s\n", m.Role.Title(), m.FirstText())
		printed = append(printed, m)
	}
	return printed
}
