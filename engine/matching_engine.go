package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/marketsim/matching-engine/logging"
	"github.com/marketsim/matching-engine/metrics"
	"github.com/marketsim/matching-engine/models"
	"github.com/marketsim/matching-engine/validation"
)

// Trade is the immutable record of a single match. The trade price is always
// the resting (passive) order's price, never the aggressor's limit price, so
// an aggressor crossing a better-priced level gets the price improvement.
// The engine emits trades and does not retain them.
type Trade struct {
	TradeID     uuid.UUID
	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	// TakerSide is the side of the aggressor order that triggered the match
	TakerSide  models.OrderSide
	Instrument string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Timestamp  time.Time
}

func newTrade(aggressor, resting *models.Order, quantity decimal.Decimal) *Trade {
	trade := &Trade{
		TradeID:    uuid.New(),
		TakerSide:  aggressor.Side,
		Instrument: aggressor.Instrument,
		Price:      resting.Price,
		Quantity:   quantity,
		Timestamp:  time.Now(),
	}
	if aggressor.Side == models.OrderSideBuy {
		trade.BuyOrderID = aggressor.ID
		trade.SellOrderID = resting.ID
	} else {
		trade.BuyOrderID = resting.ID
		trade.SellOrderID = aggressor.ID
	}
	return trade
}

type commandType string

const (
	commandNew    commandType = "NEW"
	commandCancel commandType = "CANCEL"
)

// orderCommand is a message to the matching worker
type orderCommand struct {
	Type          commandType
	Order         *models.Order         // for NEW commands
	OrderID       uuid.UUID             // for CANCEL commands
	CorrelationID string                // stamps every log line for this command
	Response      chan *CommandResponse // response channel, closed after one send
}

// CommandResponse is the result of processing a command. For a NEW command,
// Trades carries every match the submission produced and Resting reports
// whether a remainder was left in the book (Order then carries its ID and
// remaining quantity).
type CommandResponse struct {
	Trades  []*Trade
	Order   *models.Order
	Resting bool
	Error   error
}

// MatchingEngine matches incoming limit orders against a single instrument's
// book. All book mutation is funneled through one worker goroutine reading
// from a command channel, so commands are applied strictly sequentially:
// each submission resolves completely (all crossing matches done, remainder
// rested) before the next command is looked at. Arrival sequence numbers are
// assigned by that worker, which makes price-time priority deterministic.
type MatchingEngine struct {
	orderBook   *OrderBook
	validator   *validation.InputValidator
	commandChan chan *orderCommand
	stopChan    chan struct{}
	wg          sync.WaitGroup
	isRunning   bool
	mu          sync.RWMutex

	// nextSequence is touched only by the matching worker
	nextSequence uint64

	tradeHandler func(*Trade)
	eventBus     *EventBus
	log          *logrus.Entry
	errLimiter   *logging.ErrorRateLimiter

	// debugMode re-checks every book invariant after each command. An
	// invariant failure is a bug in the engine, never a user error.
	debugMode bool

	commandsProcessed uint64
}

func NewMatchingEngine(instrument string) *MatchingEngine {
	return &MatchingEngine{
		orderBook:   NewOrderBook(instrument),
		validator:   validation.NewDefaultInputValidator(),
		commandChan: make(chan *orderCommand, 1000),
		stopChan:    make(chan struct{}),
		eventBus:    NewEventBus(),
		log: logging.Logger().WithFields(logrus.Fields{
			"component":  "matching_engine",
			"instrument": instrument,
		}),
		errLimiter: logging.NewErrorRateLimiter(),
	}
}

// logError logs an engine-internal error through the rate limiter, so a
// degenerate stream that trips the same failure on every command cannot
// flood the output with identical lines.
func (me *MatchingEngine) logError(key string, err error, msg string) {
	shouldLog, suppressed := me.errLimiter.ShouldLog(key)
	if !shouldLog {
		return
	}
	entry := me.log.WithError(err)
	if suppressed > 0 {
		entry = entry.WithField("suppressed", suppressed)
	}
	entry.Error(msg)
}

// EnableDebugMode turns on invariant checking after every command
func (me *MatchingEngine) EnableDebugMode(enable bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.debugMode = enable
}

// SetTradeHandler registers a callback invoked synchronously for every
// emitted trade, in execution order.
func (me *MatchingEngine) SetTradeHandler(handler func(*Trade)) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.tradeHandler = handler
}

func (me *MatchingEngine) EventBus() *EventBus {
	return me.eventBus
}

func (me *MatchingEngine) SubscribeToEvents(eventType EventType, listener EventListener) {
	me.eventBus.Subscribe(eventType, listener)
}

// OrderBook exposes the book for read-only queries: best bid/ask, depth,
// snapshots. Consumers see a consistent view once a submission has returned.
func (me *MatchingEngine) OrderBook() *OrderBook {
	return me.orderBook
}

// Start launches the matching worker
func (me *MatchingEngine) Start(ctx context.Context) error {
	me.mu.Lock()
	if me.isRunning {
		me.mu.Unlock()
		return fmt.Errorf("matching engine is already running")
	}
	me.isRunning = true
	me.mu.Unlock()

	me.wg.Add(1)
	go me.matchingWorker(ctx)

	me.log.Info("matching engine started")
	return nil
}

// Stop shuts the engine down after draining buffered commands. The running
// flag flips before stopChan closes: submitters hold the read lock across the
// running check and the channel send, so once the flag is down no new command
// can slip in, and everything already buffered is answered by the drain.
func (me *MatchingEngine) Stop() error {
	me.mu.Lock()
	if !me.isRunning {
		me.mu.Unlock()
		return fmt.Errorf("matching engine is not running")
	}
	me.isRunning = false
	me.mu.Unlock()

	close(me.stopChan)
	me.wg.Wait()

	me.log.Info("matching engine stopped")
	return nil
}

// IsRunning reports whether the worker is accepting commands
func (me *MatchingEngine) IsRunning() bool {
	me.mu.RLock()
	defer me.mu.RUnlock()
	return me.isRunning
}

// matchingWorker is the only goroutine that ever mutates the order book
func (me *MatchingEngine) matchingWorker(ctx context.Context) {
	defer me.wg.Done()

	for {
		select {
		case <-ctx.Done():
			me.shutdown()
			return
		case <-me.stopChan:
			me.shutdown()
			return
		case cmd := <-me.commandChan:
			me.processCommand(cmd)
		}
	}
}

// shutdown takes the engine out of service and then finishes buffered
// commands. Acquiring the write lock here waits out any submitter mid-send,
// so by the time the drain starts every accepted command is in the buffer.
func (me *MatchingEngine) shutdown() {
	me.mu.Lock()
	me.isRunning = false
	me.mu.Unlock()
	me.drainCommands()
}

// drainCommands finishes buffered commands before shutdown so no caller is
// left blocked on a response channel.
func (me *MatchingEngine) drainCommands() {
	for {
		select {
		case cmd := <-me.commandChan:
			me.processCommand(cmd)
		default:
			return
		}
	}
}

func (me *MatchingEngine) processCommand(cmd *orderCommand) {
	me.mu.Lock()
	me.commandsProcessed++
	me.mu.Unlock()

	var response *CommandResponse

	log := me.log.WithFields(logging.WithCorrelationID(cmd.CorrelationID))

	switch cmd.Type {
	case commandNew:
		response = me.processNewOrder(cmd.Order, log)
	case commandCancel:
		response = me.processCancel(cmd.OrderID, log)
	default:
		response = &CommandResponse{
			Error: fmt.Errorf("unknown command type: %s", cmd.Type),
		}
	}

	me.mu.RLock()
	debug := me.debugMode
	me.mu.RUnlock()
	if debug {
		if err := me.orderBook.CheckInvariants(); err != nil {
			me.logError("invariant_violation", err, "book invariant violated")
		}
	}

	if cmd.Response != nil {
		cmd.Response <- response
		close(cmd.Response)
	}
}

// postCommand hands a command to the worker and waits for the response. The
// running check and the channel send happen under one read lock hold, paired
// with shutdown flipping the flag under the write lock before the final
// drain: a command accepted here is always answered, even when Stop races
// the submission.
func (me *MatchingEngine) postCommand(cmd *orderCommand) (*CommandResponse, error) {
	me.mu.RLock()
	if !me.isRunning {
		me.mu.RUnlock()
		return nil, fmt.Errorf("matching engine is not running")
	}

	select {
	case me.commandChan <- cmd:
		me.mu.RUnlock()
	default:
		me.mu.RUnlock()
		return nil, fmt.Errorf("command channel is full")
	}

	response := <-cmd.Response
	return response, response.Error
}

// SubmitOrder submits a limit order and blocks until matching for it has
// fully resolved. Invalid orders are rejected here, before any command is
// posted: the book is untouched and the error wraps models.ErrInvalidOrder.
func (me *MatchingEngine) SubmitOrder(order *models.Order) (*CommandResponse, error) {
	correlationID := logging.NewCorrelationID()

	if err := me.validator.ValidateOrder(order); err != nil {
		order.Reject()
		metrics.RecordOrderRejected(order.Instrument, "validation")
		me.log.WithFields(logging.WithCorrelationID(correlationID)).WithFields(logrus.Fields{
			"order_id": order.ID,
			"side":     order.Side,
			"price":    order.Price,
			"quantity": order.Quantity,
		}).WithError(err).Warn("order rejected")
		return nil, err
	}

	return me.postCommand(&orderCommand{
		Type:          commandNew,
		Order:         order,
		CorrelationID: correlationID,
		Response:      make(chan *CommandResponse, 1),
	})
}

// CancelOrder removes a resting order from the book
func (me *MatchingEngine) CancelOrder(orderID uuid.UUID) (*CommandResponse, error) {
	return me.postCommand(&orderCommand{
		Type:          commandCancel,
		OrderID:       orderID,
		CorrelationID: logging.NewCorrelationID(),
		Response:      make(chan *CommandResponse, 1),
	})
}

// processNewOrder runs the full crossing loop for one submission and rests
// any remainder. Only called by the matching worker.
func (me *MatchingEngine) processNewOrder(order *models.Order, log *logrus.Entry) *CommandResponse {
	start := time.Now()

	me.nextSequence++
	order.Sequence = me.nextSequence

	metrics.RecordOrderReceived(order.Instrument, string(order.Side))

	trades := me.matchLimitOrder(order)

	resting := false
	if !order.IsFilled() && order.CanBeFilled() {
		me.orderBook.AddOrder(order)
		resting = true

		level := me.orderBook.sideFor(order.Side).GetPriceLevel(order.Price)
		newSize := order.RemainingQuantity()
		if level != nil {
			newSize = level.Volume
		}
		me.publishOrderbookChange(string(order.Side), "add", order.Price,
			newSize, newSize.Sub(order.RemainingQuantity()))
	}

	for _, trade := range trades {
		me.emitTrade(trade)
	}

	me.updateBookMetrics()
	metrics.ObserveOrderLatency(order.Instrument, time.Since(start).Seconds())

	log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"side":     order.Side,
		"price":    order.Price,
		"quantity": order.Quantity,
		"trades":   len(trades),
		"resting":  resting,
		"status":   order.Status,
	}).Debug("order processed")

	return &CommandResponse{
		Trades:  trades,
		Order:   order,
		Resting: resting,
	}
}

// processCancel removes a resting order. Only called by the matching worker.
func (me *MatchingEngine) processCancel(orderID uuid.UUID, log *logrus.Entry) *CommandResponse {
	cancelled := me.orderBook.CancelOrder(orderID)
	if cancelled == nil {
		return &CommandResponse{
			Error: fmt.Errorf("order not found: %s", orderID),
		}
	}

	metrics.RecordOrderCancelled(cancelled.Instrument)
	me.publishOrderbookChange(string(cancelled.Side), "remove", cancelled.Price,
		decimal.Zero, cancelled.RemainingQuantity())
	me.eventBus.Publish(Event{
		Type:      EventTypeOrderCancelled,
		Timestamp: time.Now(),
		Data: OrderCancelledEvent{
			OrderID:           cancelled.ID,
			Instrument:        cancelled.Instrument,
			Side:              string(cancelled.Side),
			Price:             cancelled.Price,
			RemainingQuantity: cancelled.RemainingQuantity(),
			Timestamp:         time.Now(),
		},
	})
	me.updateBookMetrics()

	log.WithField("order_id", orderID).Debug("order cancelled")

	return &CommandResponse{
		Order: cancelled,
	}
}

// matchLimitOrder walks the opposite side of the book while the incoming
// order still crosses. The best level is re-derived from the tree on every
// iteration, so an aggressive order consumes multiple price levels in
// price order, oldest-first within each level.
func (me *MatchingEngine) matchLimitOrder(order *models.Order) []*Trade {
	trades := make([]*Trade, 0)

	for order.RemainingQuantity().GreaterThan(decimal.Zero) {
		var bestLevel *PriceLevel
		if order.Side == models.OrderSideBuy {
			bestLevel = me.orderBook.BestAsk()
		} else {
			bestLevel = me.orderBook.BestBid()
		}

		if bestLevel == nil {
			// opposite side is empty, nothing to match
			break
		}

		crosses := false
		if order.Side == models.OrderSideBuy {
			crosses = order.Price.GreaterThanOrEqual(bestLevel.Price)
		} else {
			crosses = order.Price.LessThanOrEqual(bestLevel.Price)
		}
		if !crosses {
			break
		}

		trades = append(trades, me.matchAgainstLevel(order, bestLevel)...)
	}

	return trades
}

// matchAgainstLevel fills the aggressor against one price level in FIFO
// order. Fully filled resting orders are removed immediately; when the last
// one goes, the level is dropped from its side's tree.
func (me *MatchingEngine) matchAgainstLevel(aggressor *models.Order, level *PriceLevel) []*Trade {
	trades := make([]*Trade, 0)

	for aggressor.RemainingQuantity().GreaterThan(decimal.Zero) {
		resting := level.Front()
		if resting == nil {
			break
		}

		matchQty := decimal.Min(aggressor.RemainingQuantity(), resting.RemainingQuantity())

		if err := aggressor.Fill(matchQty); err != nil {
			me.logError("aggressor_fill", err, "aggressor fill failed")
			break
		}
		if err := resting.Fill(matchQty); err != nil {
			me.logError("resting_fill", err, "resting fill failed")
			break
		}
		level.ReduceVolume(matchQty)

		trades = append(trades, newTrade(aggressor, resting, matchQty))

		if resting.IsFilled() {
			me.orderBook.RemoveOrder(resting.ID)
			me.publishOrderbookChange(string(resting.Side), "remove", resting.Price,
				decimal.Zero, matchQty)
		} else {
			me.publishOrderbookChange(string(resting.Side), "update", resting.Price,
				level.Volume, level.Volume.Add(matchQty))
		}
	}

	return trades
}

// emitTrade pushes one trade to the handler, the event bus, and metrics
func (me *MatchingEngine) emitTrade(trade *Trade) {
	volume, _ := trade.Quantity.Float64()
	metrics.RecordTradeExecuted(trade.Instrument, volume)

	me.mu.RLock()
	handler := me.tradeHandler
	me.mu.RUnlock()
	if handler != nil {
		handler(trade)
	}

	me.eventBus.Publish(Event{
		Type:      EventTypeNewTrade,
		Timestamp: time.Now(),
		Data: NewTradeEvent{
			TradeID:     trade.TradeID,
			Instrument:  trade.Instrument,
			BuyOrderID:  trade.BuyOrderID,
			SellOrderID: trade.SellOrderID,
			TakerSide:   string(trade.TakerSide),
			Price:       trade.Price,
			Quantity:    trade.Quantity,
			Timestamp:   trade.Timestamp,
		},
	})
}

func (me *MatchingEngine) publishOrderbookChange(side, action string, price, newSize, oldSize decimal.Decimal) {
	me.eventBus.Publish(Event{
		Type:      EventTypeOrderbookChange,
		Timestamp: time.Now(),
		Data: OrderbookChangeEvent{
			Instrument: me.orderBook.Instrument,
			Side:       side,
			Action:     action,
			Price:      price,
			NewSize:    newSize,
			OldSize:    oldSize,
			Timestamp:  time.Now(),
		},
	})
}

// updateBookMetrics refreshes the depth, best-price, and spread gauges
func (me *MatchingEngine) updateBookMetrics() {
	instrument := me.orderBook.Instrument

	metrics.UpdateOrderbookDepth(instrument, "buy", float64(me.orderBook.BidOrderCount()))
	metrics.UpdateOrderbookDepth(instrument, "sell", float64(me.orderBook.AskOrderCount()))

	bestBidPrice := 0.0
	bestAskPrice := 0.0
	if bestBid := me.orderBook.BestBidPrice(); bestBid != nil {
		bestBidPrice, _ = bestBid.Float64()
	}
	if bestAsk := me.orderBook.BestAskPrice(); bestAsk != nil {
		bestAskPrice, _ = bestAsk.Float64()
	}
	metrics.UpdateBestPrices(instrument, bestBidPrice, bestAskPrice)

	spread, _ := me.orderBook.Spread().Float64()
	metrics.UpdateSpread(instrument, spread)
}

// Stats reports engine health counters
func (me *MatchingEngine) Stats() map[string]interface{} {
	me.mu.RLock()
	defer me.mu.RUnlock()

	return map[string]interface{}{
		"is_running":         me.isRunning,
		"total_orders":       me.orderBook.Size(),
		"bid_levels":         me.orderBook.Bids.Len(),
		"ask_levels":         me.orderBook.Asks.Len(),
		"command_backlog":    len(me.commandChan),
		"command_capacity":   cap(me.commandChan),
		"commands_processed": me.commandsProcessed,
	}
}
