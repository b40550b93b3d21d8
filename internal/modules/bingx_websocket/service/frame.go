package service

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// MarkTick: обновление mark price по символу.
type MarkTick struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

const markPriceSuffix = "@markPrice"

var gzipMagic = []byte{0x1f, 0x8b}

// decodeFrame снимает gzip, которым BingX сжимает все кадры.
func decodeFrame(msg []byte) ([]byte, error) {
	if !bytes.HasPrefix(msg, gzipMagic) {
		return msg, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(msg))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()
	return io.ReadAll(zr)
}

func isPing(payload []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(payload)), "ping")
}

type markFrame struct {
	Code     int    `json:"code"`
	DataType string `json:"dataType"`
	Data     struct {
		Event  string `json:"e"`
		Time   int64  `json:"E"`
		Symbol string `json:"s"`
		Price  string `json:"p"`
	} `json:"data"`
}

// parseMarkPrice разбирает push канала <symbol>@markPrice. Прочие кадры (ack подписки и т.п.) пропускаются.
func parseMarkPrice(payload []byte) (MarkTick, bool) {
	var f markFrame
	if err := sonic.Unmarshal(payload, &f); err != nil {
		return MarkTick{}, false
	}
	if !strings.HasSuffix(f.DataType, markPriceSuffix) || f.Data.Price == "" {
		return MarkTick{}, false
	}
	px, err := decimal.NewFromString(f.Data.Price)
	if err != nil || !px.IsPositive() {
		return MarkTick{}, false
	}

	symbol := f.Data.Symbol
	if symbol == "" {
		symbol = strings.TrimSuffix(f.DataType, markPriceSuffix)
	}
	ts := time.Now()
	if f.Data.Time > 0 {
		ts = time.UnixMilli(f.Data.Time)
	}
	return MarkTick{Symbol: symbol, Price: px, Time: ts}, true
}

type subscription struct {
	ID       string `json:"id"`
	ReqType  string `json:"reqType"`
	DataType string `json:"dataType"`
}
