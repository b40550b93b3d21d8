package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrSchema            = errors.New("schema error")
	ErrValidation        = errors.New("validation error")
	ErrSizing            = errors.New("sizing error")
	ErrDuplicate         = errors.New("duplicate signal")
	ErrExchangeBusiness  = errors.New("exchange business error")
	ErrExchangeTransport = errors.New("exchange transport error")
)

// ErrorKind: имя класса ошибки для уведомлений и метрик.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindSchema    ErrorKind = "SchemaError"
	KindValid     ErrorKind = "ValidationError"
	KindSizing    ErrorKind = "SizingError"
	KindDuplicate ErrorKind = "DuplicateSignal"
	KindBusiness  ErrorKind = "ExchangeBusinessError"
	KindTransport ErrorKind = "ExchangeTransportError"
	KindInternal  ErrorKind = "InternalError"
)

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrSchema):
		return KindSchema
	case errors.Is(err, ErrValidation):
		return KindValid
	case errors.Is(err, ErrSizing):
		return KindSizing
	case errors.Is(err, ErrExchangeBusiness):
		return KindBusiness
	case errors.Is(err, ErrExchangeTransport):
		return KindTransport
	}
	return KindInternal
}

// SchemaError: во входящем payload не удалось определить symbol/action.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: %s: %s", e.Field, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

type ValidationError struct {
	Symbol string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Symbol, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SizingError: количество округлилось в ноль или ниже minQty.
type SizingError struct {
	Symbol         string
	Reason         string
	RequiredMargin decimal.NullDecimal // при текущем плече
	Leverage       int
}

func (e *SizingError) Error() string {
	msg := fmt.Sprintf("sizing: %s: %s", e.Symbol, e.Reason)
	if e.RequiredMargin.Valid {
		msg += fmt.Sprintf("; increase margin to at least %s USDT", e.RequiredMargin.Decimal.StringFixed(2))
		if e.Leverage > 0 {
			msg += fmt.Sprintf(" at %dx leverage or raise leverage", e.Leverage)
		}
	}
	return msg
}

func (e *SizingError) Is(target error) bool { return target == ErrSizing }

// BusinessError: биржа ответила кодом != 0. Не ретраится.
type BusinessError struct {
	Method  string
	URL     string
	Path    string
	Code    string
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("bingx %s %s: code=%s msg=%s", e.Method, e.Path, e.Code, e.Message)
}

func (e *BusinessError) Is(target error) bool { return target == ErrExchangeBusiness }

// TransportError: сеть, таймаут, 429/5xx или тело не в формате envelope.
type TransportError struct {
	Method string
	URL    string
	Path   string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("bingx %s %s: http %d: %v", e.Method, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("bingx %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrExchangeTransport }
