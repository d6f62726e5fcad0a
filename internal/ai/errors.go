package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/openai/openai-go/v3"
)

var errMissingID = errors.New("response has no id")

// TransportError сетевая ошибка: соединение, DNS, таймаут, отмена контекста.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError ответ не совпал с ожидаемой формой: конверт ошибки вендора,
// битый JSON или запись без идентификатора. StatusCode равен 0, если HTTP-статус неизвестен.
type DecodeError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *DecodeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: decode (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: decode: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// classify раскладывает ошибку SDK по таксономии клиента.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &DecodeError{Op: op, StatusCode: apiErr.StatusCode, Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Op: op, Err: err}
	}

	// Ответ получен, но разобрать его не удалось.
	return &DecodeError{Op: op, Err: err}
}

// IsFatal true для ошибок таксономии клиента: после них сессия не продолжается.
func IsFatal(err error) bool {
	var te *TransportError
	var de *DecodeError
	return errors.As(err, &te) || errors.As(err, &de)
}
