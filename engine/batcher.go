package engine

import (
	"context"
	"sync"
	"time"
)

// TradeBatcher groups emitted trades and events into bounded batches for a
// downstream reporting consumer, so a burst of small fills becomes one
// hand-off instead of thousands. Batches flush when full or on a timer,
// whichever comes first. Everything stays in memory.
type TradeBatcher struct {
	tradeBatch     []*Trade
	tradeBatchSize int
	tradeMu        sync.Mutex

	eventBatch     []Event
	eventBatchSize int
	eventMu        sync.Mutex

	flushInterval time.Duration

	tradeHandler func([]*Trade)
	eventHandler func([]Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tradeBatchesFlushed uint64
	eventBatchesFlushed uint64
	tradeCount          uint64
	eventCount          uint64
	statsMu             sync.RWMutex
}

// BatchConfig bounds batch sizes and the flush timer
type BatchConfig struct {
	TradeBatchSize int
	EventBatchSize int
	FlushInterval  time.Duration
}

func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		TradeBatchSize: 50,
		EventBatchSize: 100,
		FlushInterval:  10 * time.Millisecond,
	}
}

func NewTradeBatcher(config *BatchConfig) *TradeBatcher {
	if config == nil {
		config = DefaultBatchConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TradeBatcher{
		tradeBatch:     make([]*Trade, 0, config.TradeBatchSize),
		tradeBatchSize: config.TradeBatchSize,
		eventBatch:     make([]Event, 0, config.EventBatchSize),
		eventBatchSize: config.EventBatchSize,
		flushInterval:  config.FlushInterval,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetTradeHandler registers the consumer of flushed trade batches
func (tb *TradeBatcher) SetTradeHandler(handler func([]*Trade)) {
	tb.tradeMu.Lock()
	defer tb.tradeMu.Unlock()
	tb.tradeHandler = handler
}

// SetEventHandler registers the consumer of flushed event batches
func (tb *TradeBatcher) SetEventHandler(handler func([]Event)) {
	tb.eventMu.Lock()
	defer tb.eventMu.Unlock()
	tb.eventHandler = handler
}

// Start launches the periodic flush loop
func (tb *TradeBatcher) Start() {
	tb.wg.Add(1)
	go tb.flushLoop()
}

// Stop flushes whatever is pending and stops the loop
func (tb *TradeBatcher) Stop() {
	tb.cancel()
	tb.wg.Wait()
	tb.FlushTrades()
	tb.FlushEvents()
}

func (tb *TradeBatcher) flushLoop() {
	defer tb.wg.Done()

	ticker := time.NewTicker(tb.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-tb.ctx.Done():
			return
		case <-ticker.C:
			tb.FlushTrades()
			tb.FlushEvents()
		}
	}
}

// AddTrade appends a trade, flushing if the batch is full
func (tb *TradeBatcher) AddTrade(trade *Trade) {
	tb.tradeMu.Lock()
	tb.tradeBatch = append(tb.tradeBatch, trade)
	full := len(tb.tradeBatch) >= tb.tradeBatchSize
	tb.tradeMu.Unlock()

	tb.statsMu.Lock()
	tb.tradeCount++
	tb.statsMu.Unlock()

	if full {
		tb.FlushTrades()
	}
}

// AddEvent appends an event, flushing if the batch is full
func (tb *TradeBatcher) AddEvent(event Event) {
	tb.eventMu.Lock()
	tb.eventBatch = append(tb.eventBatch, event)
	full := len(tb.eventBatch) >= tb.eventBatchSize
	tb.eventMu.Unlock()

	tb.statsMu.Lock()
	tb.eventCount++
	tb.statsMu.Unlock()

	if full {
		tb.FlushEvents()
	}
}

// FlushTrades hands the pending trade batch to the handler
func (tb *TradeBatcher) FlushTrades() {
	tb.tradeMu.Lock()
	if len(tb.tradeBatch) == 0 {
		tb.tradeMu.Unlock()
		return
	}
	batch := tb.tradeBatch
	tb.tradeBatch = make([]*Trade, 0, tb.tradeBatchSize)
	handler := tb.tradeHandler
	tb.tradeMu.Unlock()

	tb.statsMu.Lock()
	tb.tradeBatchesFlushed++
	tb.statsMu.Unlock()

	if handler != nil {
		handler(batch)
	}
}

// FlushEvents hands the pending event batch to the handler
func (tb *TradeBatcher) FlushEvents() {
	tb.eventMu.Lock()
	if len(tb.eventBatch) == 0 {
		tb.eventMu.Unlock()
		return
	}
	batch := tb.eventBatch
	tb.eventBatch = make([]Event, 0, tb.eventBatchSize)
	handler := tb.eventHandler
	tb.eventMu.Unlock()

	tb.statsMu.Lock()
	tb.eventBatchesFlushed++
	tb.statsMu.Unlock()

	if handler != nil {
		handler(batch)
	}
}

// Stats reports batching counters
func (tb *TradeBatcher) Stats() map[string]uint64 {
	tb.statsMu.RLock()
	defer tb.statsMu.RUnlock()

	return map[string]uint64{
		"trades_batched":        tb.tradeCount,
		"events_batched":        tb.eventCount,
		"trade_batches_flushed": tb.tradeBatchesFlushed,
		"event_batches_flushed": tb.eventBatchesFlushed,
	}
}
