package engine

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketsim/matching-engine/models"
)

// PriceLevel holds all resting orders at one exact price on one side of the
// book, in arrival order (FIFO / time priority). A level never exists in a
// side's tree while empty.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders *list.List
	Volume decimal.Decimal
}

// NewPriceLevel creates an empty price level
func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		Price:  price,
		Orders: list.New(),
		Volume: decimal.Zero,
	}
}

// AddOrder appends an order to the back of the level's queue
func (pl *PriceLevel) AddOrder(order *models.Order) *list.Element {
	element := pl.Orders.PushBack(order)
	pl.Volume = pl.Volume.Add(order.RemainingQuantity())
	return element
}

// RemoveOrder removes an order from the level's queue
func (pl *PriceLevel) RemoveOrder(element *list.Element) {
	if element == nil {
		return
	}
	order := element.Value.(*models.Order)
	pl.Volume = pl.Volume.Sub(order.RemainingQuantity())
	pl.Orders.Remove(element)
}

// ReduceVolume decrements the cached level volume after a fill. Keeping the
// volume incrementally avoids rescanning the queue on every trade.
func (pl *PriceLevel) ReduceVolume(quantity decimal.Decimal) {
	pl.Volume = pl.Volume.Sub(quantity)
}

// Front returns the earliest-arrived order at this level, or nil
func (pl *PriceLevel) Front() *models.Order {
	element := pl.Orders.Front()
	if element == nil {
		return nil
	}
	return element.Value.(*models.Order)
}

// IsEmpty reports whether the level holds no orders
func (pl *PriceLevel) IsEmpty() bool {
	return pl.Orders.Len() == 0
}

// Less orders price levels by price within a side's tree
func (pl *PriceLevel) Less(than btree.Item) bool {
	other := than.(*PriceLevel)
	return pl.Price.LessThan(other.Price)
}

// BookSide is one side of the order book: a btree of price levels keyed by
// price, so best-price lookup and level insertion/removal are logarithmic in
// the number of levels rather than a full rescan.
type BookSide struct {
	tree *btree.BTree
}

// NewBookSide creates an empty book side
func NewBookSide() *BookSide {
	return &BookSide{
		tree: btree.New(32),
	}
}

// GetOrCreatePriceLevel returns the level at price, creating it lazily
func (bs *BookSide) GetOrCreatePriceLevel(price decimal.Decimal) *PriceLevel {
	searchLevel := &PriceLevel{Price: price}

	if item := bs.tree.Get(searchLevel); item != nil {
		return item.(*PriceLevel)
	}

	newLevel := NewPriceLevel(price)
	bs.tree.ReplaceOrInsert(newLevel)
	return newLevel
}

// GetPriceLevel returns the level at price, or nil
func (bs *BookSide) GetPriceLevel(price decimal.Decimal) *PriceLevel {
	searchLevel := &PriceLevel{Price: price}
	if item := bs.tree.Get(searchLevel); item != nil {
		return item.(*PriceLevel)
	}
	return nil
}

// RemovePriceLevel removes the level at price from the tree
func (bs *BookSide) RemovePriceLevel(price decimal.Decimal) {
	searchLevel := &PriceLevel{Price: price}
	bs.tree.Delete(searchLevel)
}

// BestLevel returns the best price level (highest for bids, lowest for asks)
func (bs *BookSide) BestLevel(isBid bool) *PriceLevel {
	var item btree.Item
	if isBid {
		item = bs.tree.Max()
	} else {
		item = bs.tree.Min()
	}

	if item != nil {
		return item.(*PriceLevel)
	}
	return nil
}

// Ascend iterates through price levels in ascending price order
func (bs *BookSide) Ascend(iterator btree.ItemIterator) {
	bs.tree.Ascend(iterator)
}

// Descend iterates through price levels in descending price order
func (bs *BookSide) Descend(iterator btree.ItemIterator) {
	bs.tree.Descend(iterator)
}

// Len returns the number of price levels on this side
func (bs *BookSide) Len() int {
	return bs.tree.Len()
}

// orderLocation tracks where a resting order sits, for O(1) lookup and cancel
type orderLocation struct {
	priceLevel *PriceLevel
	element    *list.Element
}

// OrderBook owns the two sides of the book for a single instrument. The two
// side trees and the location map are exclusively owned by the book; all
// mutation goes through its methods.
type OrderBook struct {
	Instrument string
	Bids       *BookSide
	Asks       *BookSide
	orders     map[uuid.UUID]*orderLocation
	mu         sync.RWMutex
}

// NewOrderBook creates an empty order book for an instrument
func NewOrderBook(instrument string) *OrderBook {
	return &OrderBook{
		Instrument: instrument,
		Bids:       NewBookSide(),
		Asks:       NewBookSide(),
		orders:     make(map[uuid.UUID]*orderLocation),
	}
}

func (ob *OrderBook) sideFor(side models.OrderSide) *BookSide {
	if side == models.OrderSideBuy {
		return ob.Bids
	}
	return ob.Asks
}

// AddOrder rests an order at the back of its price level's queue
// (price-time priority), creating the level if needed.
func (ob *OrderBook) AddOrder(order *models.Order) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	side := ob.sideFor(order.Side)
	priceLevel := side.GetOrCreatePriceLevel(order.Price)
	element := priceLevel.AddOrder(order)

	ob.orders[order.ID] = &orderLocation{
		priceLevel: priceLevel,
		element:    element,
	}
}

// RemoveOrder removes an order from the book, dropping its price level if it
// was the last order there. Returns the removed order, or nil.
func (ob *OrderBook) RemoveOrder(orderID uuid.UUID) *models.Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.removeOrderLocked(orderID)
}

func (ob *OrderBook) removeOrderLocked(orderID uuid.UUID) *models.Order {
	location, exists := ob.orders[orderID]
	if !exists {
		return nil
	}

	order := location.element.Value.(*models.Order)
	location.priceLevel.RemoveOrder(location.element)

	if location.priceLevel.IsEmpty() {
		ob.sideFor(order.Side).RemovePriceLevel(location.priceLevel.Price)
	}

	delete(ob.orders, orderID)
	return order
}

// CancelOrder removes an order and marks it cancelled. Returns nil when the
// order is not resting in the book.
func (ob *OrderBook) CancelOrder(orderID uuid.UUID) *models.Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order := ob.removeOrderLocked(orderID)
	if order == nil {
		return nil
	}
	order.Cancel()
	return order
}

// GetOrder retrieves a resting order by ID (O(1) lookup)
func (ob *OrderBook) GetOrder(orderID uuid.UUID) *models.Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	location, exists := ob.orders[orderID]
	if !exists {
		return nil
	}
	return location.element.Value.(*models.Order)
}

// BestBid returns the highest bid price level, or nil if no bids rest
func (ob *OrderBook) BestBid() *PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.Bids.BestLevel(true)
}

// BestAsk returns the lowest ask price level, or nil if no asks rest
func (ob *OrderBook) BestAsk() *PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.Asks.BestLevel(false)
}

// BestBidPrice returns the highest bid price (nil if no bids)
func (ob *OrderBook) BestBidPrice() *decimal.Decimal {
	bestBid := ob.BestBid()
	if bestBid == nil {
		return nil
	}
	return &bestBid.Price
}

// BestAskPrice returns the lowest ask price (nil if no asks)
func (ob *OrderBook) BestAskPrice() *decimal.Decimal {
	bestAsk := ob.BestAsk()
	if bestAsk == nil {
		return nil
	}
	return &bestAsk.Price
}

// Spread returns best ask minus best bid, or zero if either side is empty
func (ob *OrderBook) Spread() decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bestBid := ob.Bids.BestLevel(true)
	bestAsk := ob.Asks.BestLevel(false)

	if bestBid == nil || bestAsk == nil {
		return decimal.Zero
	}
	return bestAsk.Price.Sub(bestBid.Price)
}

// Depth returns the total resting volume on each side
func (ob *OrderBook) Depth() (bidVolume, askVolume decimal.Decimal) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bidVolume = decimal.Zero
	askVolume = decimal.Zero

	ob.Bids.Ascend(func(item btree.Item) bool {
		bidVolume = bidVolume.Add(item.(*PriceLevel).Volume)
		return true
	})
	ob.Asks.Ascend(func(item btree.Item) bool {
		askVolume = askVolume.Add(item.(*PriceLevel).Volume)
		return true
	})

	return bidVolume, askVolume
}

// TopLevels returns the top N price levels on each side: bids best-first
// (highest price), asks best-first (lowest price).
func (ob *OrderBook) TopLevels(n int) (bids, asks []*PriceLevel) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bids = make([]*PriceLevel, 0, n)
	asks = make([]*PriceLevel, 0, n)

	count := 0
	ob.Bids.Descend(func(item btree.Item) bool {
		if count >= n {
			return false
		}
		bids = append(bids, item.(*PriceLevel))
		count++
		return true
	})

	count = 0
	ob.Asks.Ascend(func(item btree.Item) bool {
		if count >= n {
			return false
		}
		asks = append(asks, item.(*PriceLevel))
		count++
		return true
	})

	return bids, asks
}

// LevelSnapshot is one price level in a book snapshot
type LevelSnapshot struct {
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	OrderCount int             `json:"order_count"`
	// Orders lists the resting queue in priority order
	Orders []OrderSnapshot `json:"orders,omitempty"`
}

// OrderSnapshot is one resting order in a book snapshot
type OrderSnapshot struct {
	OrderID   uuid.UUID       `json:"order_id"`
	Remaining decimal.Decimal `json:"remaining"`
	Sequence  uint64          `json:"sequence"`
}

// BookSnapshot is a consistent point-in-time view of the book, the hand-off
// format for market-data consumers. Bids descend from the best bid, asks
// ascend from the best ask.
type BookSnapshot struct {
	Instrument string          `json:"instrument"`
	Bids       []LevelSnapshot `json:"bids"`
	Asks       []LevelSnapshot `json:"asks"`
	Timestamp  time.Time       `json:"timestamp"`
}

func snapshotLevel(pl *PriceLevel, withOrders bool) LevelSnapshot {
	ls := LevelSnapshot{
		Price:      pl.Price,
		Volume:     pl.Volume,
		OrderCount: pl.Orders.Len(),
	}
	if withOrders {
		ls.Orders = make([]OrderSnapshot, 0, pl.Orders.Len())
		for e := pl.Orders.Front(); e != nil; e = e.Next() {
			order := e.Value.(*models.Order)
			ls.Orders = append(ls.Orders, OrderSnapshot{
				OrderID:   order.ID,
				Remaining: order.RemainingQuantity(),
				Sequence:  order.Sequence,
			})
		}
	}
	return ls
}

// Snapshot captures up to maxLevels levels per side. withOrders includes the
// per-level order queues; maxLevels <= 0 means all levels.
func (ob *OrderBook) Snapshot(maxLevels int, withOrders bool) *BookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if maxLevels <= 0 {
		maxLevels = ob.Bids.Len() + ob.Asks.Len()
	}

	snapshot := &BookSnapshot{
		Instrument: ob.Instrument,
		Bids:       make([]LevelSnapshot, 0, maxLevels),
		Asks:       make([]LevelSnapshot, 0, maxLevels),
		Timestamp:  time.Now(),
	}

	count := 0
	ob.Bids.Descend(func(item btree.Item) bool {
		if count >= maxLevels {
			return false
		}
		snapshot.Bids = append(snapshot.Bids, snapshotLevel(item.(*PriceLevel), withOrders))
		count++
		return true
	})

	count = 0
	ob.Asks.Ascend(func(item btree.Item) bool {
		if count >= maxLevels {
			return false
		}
		snapshot.Asks = append(snapshot.Asks, snapshotLevel(item.(*PriceLevel), withOrders))
		count++
		return true
	})

	return snapshot
}

// Size returns the total number of resting orders
func (ob *OrderBook) Size() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.orders)
}

// BidOrderCount returns the number of resting buy orders
func (ob *OrderBook) BidOrderCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	count := 0
	ob.Bids.Descend(func(item btree.Item) bool {
		count += item.(*PriceLevel).Orders.Len()
		return true
	})
	return count
}

// AskOrderCount returns the number of resting sell orders
func (ob *OrderBook) AskOrderCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	count := 0
	ob.Asks.Ascend(func(item btree.Item) bool {
		count += item.(*PriceLevel).Orders.Len()
		return true
	})
	return count
}

// Clear removes all orders from the order book
func (ob *OrderBook) Clear() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.Bids = NewBookSide()
	ob.Asks = NewBookSide()
	ob.orders = make(map[uuid.UUID]*orderLocation)
}

// CheckInvariants verifies the structural invariants of the book. A non-nil
// error means a programming bug, not a user error; tests assert nil after
// every mutation sequence.
//
// Checked: no empty level is present in a side tree, every order at a level
// carries the level's exact price and side, queue order follows arrival
// sequence, cached level volume equals the sum of remaining quantities, no
// order has negative remaining quantity, the location map agrees with the
// trees, and the book is never crossed (best bid < best ask).
func (ob *OrderBook) CheckInvariants() error {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	inBook := 0
	var err error

	checkSide := func(bs *BookSide, side models.OrderSide) {
		bs.Ascend(func(item btree.Item) bool {
			level := item.(*PriceLevel)
			if level.IsEmpty() {
				err = fmt.Errorf("empty %s level at price %s", side, level.Price)
				return false
			}

			volume := decimal.Zero
			lastSeq := uint64(0)
			for e := level.Orders.Front(); e != nil; e = e.Next() {
				order := e.Value.(*models.Order)
				inBook++

				if order.Side != side {
					err = fmt.Errorf("order %s with side %s resting on %s side", order.ID, order.Side, side)
					return false
				}
				if !order.Price.Equal(level.Price) {
					err = fmt.Errorf("order %s at price %s resting in level %s", order.ID, order.Price, level.Price)
					return false
				}
				if order.RemainingQuantity().LessThanOrEqual(decimal.Zero) {
					err = fmt.Errorf("order %s resting with remaining quantity %s", order.ID, order.RemainingQuantity())
					return false
				}
				if order.Sequence <= lastSeq {
					err = fmt.Errorf("order %s out of arrival order at level %s (sequence %d after %d)",
						order.ID, level.Price, order.Sequence, lastSeq)
					return false
				}
				lastSeq = order.Sequence

				if _, ok := ob.orders[order.ID]; !ok {
					err = fmt.Errorf("order %s resting at level %s missing from location map", order.ID, level.Price)
					return false
				}
				volume = volume.Add(order.RemainingQuantity())
			}

			if !volume.Equal(level.Volume) {
				err = fmt.Errorf("%s level %s cached volume %s, actual %s", side, level.Price, level.Volume, volume)
				return false
			}
			return true
		})
	}

	checkSide(ob.Bids, models.OrderSideBuy)
	if err != nil {
		return err
	}
	checkSide(ob.Asks, models.OrderSideSell)
	if err != nil {
		return err
	}

	if inBook != len(ob.orders) {
		return fmt.Errorf("%d orders in levels but %d in location map", inBook, len(ob.orders))
	}

	bestBid := ob.Bids.BestLevel(true)
	bestAsk := ob.Asks.BestLevel(false)
	if bestBid != nil && bestAsk != nil && bestBid.Price.GreaterThanOrEqual(bestAsk.Price) {
		return fmt.Errorf("crossed book: best bid %s >= best ask %s", bestBid.Price, bestAsk.Price)
	}

	return nil
}
