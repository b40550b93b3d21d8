package notify

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Notifier: исходящий канал оператору. Отправка best-effort, ошибки только логируются.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Log пишет уведомления в лог, когда чата нет.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

func (l *Log) Send(msg string) {
	l.log.Info("notify", zap.String("text", msg))
}

func (l *Log) Sendf(format string, args ...any) { l.Send(fmt.Sprintf(format, args...)) }

// Recorder копит сообщения (тесты и /status).
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *Recorder) Send(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *Recorder) Sendf(format string, args ...any) { r.Send(fmt.Sprintf(format, args...)) }

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// Last: последнее сообщение, содержащее substr.
func (r *Recorder) Last(substr string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if strings.Contains(r.msgs[i], substr) {
			return r.msgs[i], true
		}
	}
	return "", false
}

// Multi рассылает во все каналы.
type Multi []Notifier

func (m Multi) Send(msg string) {
	for _, n := range m {
		if n != nil {
			n.Send(msg)
		}
	}
}

func (m Multi) Sendf(format string, args ...any) { m.Send(fmt.Sprintf(format, args...)) }
