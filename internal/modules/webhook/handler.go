package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"signal_bridge/internal/models"
	"signal_bridge/internal/runner"
	"signal_bridge/internal/signal"
)

const (
	secretHeader = "X-Webhook-Secret"
	maxBody      = 64 << 10
)

type AlertHandler interface {
	HandleAlert(ctx context.Context, raw map[string]any) ([]runner.Result, error)
}

type Handler struct {
	secret string
	alerts AlertHandler
	log    *zap.Logger

	// OnAccepted вызывается для каждого авторизованного алерта
	OnAccepted func(time.Time)
}

func NewHandler(secret string, alerts AlertHandler, log *zap.Logger) *Handler {
	return &Handler{secret: secret, alerts: alerts, log: log}
}

type response struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Results []runner.Result `json:"results,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, response{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "read body"})
		return
	}
	if len(body) > maxBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, response{Error: "body too large"})
		return
	}

	raw, err := signal.ParsePayload(body)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, response{Error: err.Error()})
		return
	}

	// секрет из заголовка, query или поля payload
	got := r.Header.Get(secretHeader)
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	for k, v := range raw {
		if strings.EqualFold(k, "secret") {
			if got == "" {
				if s, ok := v.(string); ok {
					got = s
				}
			}
			delete(raw, k)
		}
	}
	if !h.authorized(got) {
		h.log.Warn("webhook unauthorized", zap.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, response{Error: "unauthorized"})
		return
	}

	if h.OnAccepted != nil {
		h.OnAccepted(time.Now())
	}

	results, err := h.alerts.HandleAlert(r.Context(), raw)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrSchema) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, response{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response{OK: true, Results: results})
}

func (h *Handler) authorized(got string) bool {
	if h.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
