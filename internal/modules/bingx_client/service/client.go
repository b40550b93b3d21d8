package service

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"signal_bridge/internal/models"
)

const (
	DefaultBaseURL    = "https://open-api.bingx.com"
	DefaultRecvWindow = 30 * time.Second
	DefaultAttempts   = 3
	DefaultRetryDelay = 300 * time.Millisecond

	apiKeyHeader = "X-BX-APIKEY"
)

// Swap v2 REST
const (
	PathOrder        = "/openApi/swap/v2/trade/order"
	PathOpenOrders   = "/openApi/swap/v2/trade/openOrders"
	PathLeverage     = "/openApi/swap/v2/trade/leverage"
	PathMarginType   = "/openApi/swap/v2/trade/marginType"
	PathBalance      = "/openApi/swap/v2/user/balance"
	PathPositions    = "/openApi/swap/v2/user/positions"
	PathContracts    = "/openApi/swap/v2/quote/contracts"
	PathPremiumIndex = "/openApi/swap/v2/quote/premiumIndex"
)

// Client: REST клиент BingX perpetual swap.
type Client struct {
	baseURL    string
	apiKey     string
	secret     string
	recvWindow time.Duration
	mode       models.PositionMode

	attempts   uint
	retryDelay time.Duration

	http *http.Client
	log  *zap.Logger
	now  func() time.Time
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithRecvWindow(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.recvWindow = d
		}
	}
}

// WithRetry: сколько попыток и стартовая пауза для транспортных ошибок.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

func WithPositionMode(m models.PositionMode) Option {
	return func(c *Client) {
		if m != "" {
			c.mode = m
		}
	}
}

func New(apiKey, secret string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		secret:     secret,
		recvWindow: DefaultRecvWindow,
		mode:       models.PositionModeHedge,
		attempts:   DefaultAttempts,
		retryDelay: DefaultRetryDelay,
		http:       &http.Client{},
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) PositionMode() models.PositionMode { return c.mode }

func (c *Client) BaseURL() string { return c.baseURL }
