package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"signal_bridge/internal/models"
)

// CodeWrongEndpoint: BingX: "this api is not exist".
const CodeWrongEndpoint = "100400"

// FormatError собирает "<METHOD> <URL> → <code> <message>" и подсказку для 100400 на /trade/order.
func FormatError(method, url, path, code, message string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	target := url
	if target == "" {
		target = path
	}
	if target == "" {
		target = "<unknown>"
	}

	out := method + " " + target
	if details := strings.TrimSpace(code + " " + message); details != "" {
		out += " → " + details
	}

	if strings.TrimRight(path, "/") == PathOrder && code == CodeWrongEndpoint {
		out += fmt.Sprintf("\nHint: use POST %s%s with x-www-form-urlencoded.", DefaultBaseURL, PathOrder)
	}
	return out
}

// Describe: текст ошибки биржи для уведомления оператору.
func Describe(err error) string {
	var be *models.BusinessError
	if errors.As(err, &be) {
		return FormatError(be.Method, be.URL, be.Path, be.Code, be.Message)
	}
	var te *models.TransportError
	if errors.As(err, &te) {
		return FormatError(te.Method, te.URL, te.Path, "", te.Err.Error())
	}
	return err.Error()
}
