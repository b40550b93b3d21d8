package signal

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"

	"signal_bridge/internal/models"
)

var (
	kvSeparator = regexp.MustCompile(`[;&\n\r]+`)
	kvSplitter  = regexp.MustCompile(`[=:]`)
)

// ParsePayload разбирает тело вебхука: JSON-объект или текст key=value.
func ParsePayload(body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &models.SchemaError{Reason: "empty payload"}
	}

	if trimmed[0] == '{' {
		var out map[string]any
		if err := sonic.Unmarshal(trimmed, &out); err != nil {
			return nil, &models.SchemaError{Reason: "invalid json: " + err.Error()}
		}
		return out, nil
	}
	if trimmed[0] == '[' {
		return nil, &models.SchemaError{Reason: "payload must be an object"}
	}

	out := make(map[string]any)
	for _, token := range kvSeparator.Split(string(trimmed), -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		parts := kvSplitter.Split(token, 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	if len(out) == 0 {
		return nil, &models.SchemaError{Reason: "no key=value pairs in payload"}
	}
	return out, nil
}
