package runner

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	ws "signal_bridge/internal/modules/bingx_websocket/service"
)

type tickHandler func(ctx context.Context, symbol string, price decimal.Decimal)

// tickFanout раздаёт тики по воркерам символов: медленный ордер по одному
// символу не держит цены остальных. В очереди воркера только последний тик.
// dispatch вызывается из одной горутины.
type tickFanout struct {
	handle  tickHandler
	workers map[string]chan ws.MarkTick
	wg      sync.WaitGroup
}

func newTickFanout(handle tickHandler) *tickFanout {
	return &tickFanout{handle: handle, workers: make(map[string]chan ws.MarkTick)}
}

func (f *tickFanout) run(ctx context.Context, ticks <-chan ws.MarkTick) {
	defer f.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticks:
			f.dispatch(ctx, tick)
		}
	}
}

func (f *tickFanout) dispatch(ctx context.Context, tick ws.MarkTick) {
	ch := f.worker(ctx, tick.Symbol)
	select {
	case ch <- tick:
		return
	default:
	}
	// вытесняем устаревший тик
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- tick:
	default:
	}
}

func (f *tickFanout) worker(ctx context.Context, symbol string) chan ws.MarkTick {
	if ch, ok := f.workers[symbol]; ok {
		return ch
	}
	ch := make(chan ws.MarkTick, 1)
	f.workers[symbol] = ch
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-ch:
				f.handle(ctx, tick.Symbol, tick.Price)
			}
		}
	}()
	return ch
}
