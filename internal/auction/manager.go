// Package auction runs the single system-wide item auction. The live auction
// is held in memory behind the manager's mutex and journaled to the event
// store so a replacement leader can restore it after failover.
package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mlindholt/discord-guildbot/internal/catalog"
	"github.com/mlindholt/discord-guildbot/internal/clock"
	"github.com/mlindholt/discord-guildbot/internal/economy"
	"github.com/mlindholt/discord-guildbot/internal/effect"
	"github.com/mlindholt/discord-guildbot/internal/event"
	"github.com/mlindholt/discord-guildbot/internal/inventory"
	"github.com/mlindholt/discord-guildbot/internal/store"
)

// Errors returned by auction operations.
var (
	ErrAuctionActive  = errors.New("an auction is already active")
	ErrUnknownItem    = errors.New("item not in catalog")
	ErrNoAuction      = errors.New("no active auction")
	ErrAuctionExpired = errors.New("auction has ended")
	ErrBelowMinimum   = errors.New("bid below the item's minimum")
	ErrBidTooLow      = errors.New("bid must exceed the current highest")
)

// aggregateID keys the auction journal. There is only ever one auction, so
// all its events share one aggregate.
const aggregateID = "auction"

// Auction is the live auction state.
type Auction struct {
	ItemID    string
	StartedBy string
	MinBid    int
	EndsAt    time.Time
	// Bids holds one live bid per player; a re-bid overwrites.
	Bids map[string]int
}

// Highest returns the current highest bid and its bidder. ok is false when
// no bids have been placed.
func (a *Auction) Highest() (playerID string, amount int, ok bool) {
	for p, b := range a.Bids {
		if !ok || b > amount {
			playerID, amount, ok = p, b, true
		}
	}
	return playerID, amount, ok
}

// SettleResult reports an auction settlement. WinnerID is empty when the
// auction closed without bids, and Forfeited is true when the winner could
// no longer cover their bid.
type SettleResult struct {
	ItemID    string
	WinnerID  string
	Amount    int
	Forfeited bool
}

// Manager owns the auction singleton.
type Manager struct {
	catalog   *catalog.Catalog
	economy   *economy.Manager
	inventory *inventory.Manager
	players   store.PlayerRepository
	events    event.Store
	sink      effect.Sink
	clk       clock.Clock
	logger    *slog.Logger
	tracer    trace.Tracer

	mu      sync.Mutex
	current *Auction
}

// NewManager returns a new auction Manager.
func NewManager(cat *catalog.Catalog, eco *economy.Manager, inv *inventory.Manager, players store.PlayerRepository, events event.Store, sink effect.Sink, clk clock.Clock, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		catalog:   cat,
		economy:   eco,
		inventory: inv,
		players:   players,
		events:    events,
		sink:      sink,
		clk:       clk,
		logger:    logger,
		tracer:    tp.Tracer("github.com/mlindholt/discord-guildbot/internal/auction"),
	}
}

// Current returns a copy of the live auction, or ErrNoAuction.
func (m *Manager) Current(ctx context.Context) (*Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoAuction
	}
	cp := *m.current
	cp.Bids = make(map[string]int, len(m.current.Bids))
	for p, b := range m.current.Bids {
		cp.Bids[p] = b
	}
	return &cp, nil
}

// Start opens an auction for the item. Only one auction may be active at a
// time, system-wide.
func (m *Manager) Start(ctx context.Context, startedBy, itemID string, duration time.Duration) (*Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Start",
		trace.WithAttributes(
			attribute.String("item_id", itemID),
			attribute.String("player_id", startedBy),
		),
	)
	defer span.End()

	item, ok := m.catalog.Item(itemID)
	if !ok {
		return nil, ErrUnknownItem
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return nil, ErrAuctionActive
	}

	a := &Auction{
		ItemID:    itemID,
		StartedBy: startedBy,
		MinBid:    item.MinBid,
		EndsAt:    m.clk.Now().Add(duration),
		Bids:      make(map[string]int),
	}
	m.current = a
	m.appendEvent(ctx, event.AuctionStarted, event.AuctionStartedData{
		ItemID: itemID, StartedBy: startedBy, MinBid: item.MinBid, EndsAt: a.EndsAt,
	})

	m.logger.InfoContext(ctx, "auction started",
		slog.String("item_id", itemID),
		slog.Int("min_bid", item.MinBid),
		slog.Time("ends_at", a.EndsAt),
	)
	cp := *a
	return &cp, nil
}

// Bid places or replaces the player's bid. A bid must meet the item minimum,
// strictly exceed the current highest, and be covered by the player's
// balance at bid time.
func (m *Manager) Bid(ctx context.Context, playerID string, amount int) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Bid",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	p, err := m.economy.GetOrCreate(ctx, playerID)
	if err != nil {
		return fmt.Errorf("loading bidder: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNoAuction
	}
	if m.clk.Now().After(m.current.EndsAt) {
		return ErrAuctionExpired
	}
	if amount < m.current.MinBid {
		return ErrBelowMinimum
	}
	if _, highest, ok := m.current.Highest(); ok && amount <= highest {
		return ErrBidTooLow
	}
	if p.Coins < amount {
		return economy.ErrInsufficientFunds
	}

	m.current.Bids[playerID] = amount
	m.appendEvent(ctx, event.AuctionBid, event.AuctionBidData{PlayerID: playerID, Amount: amount})

	m.logger.InfoContext(ctx, "bid placed",
		slog.String("player_id", playerID),
		slog.Int("amount", amount),
	)
	return nil
}

// Settle closes the auction: the highest bidder is debited, granted the
// item, and has their auctions_won counter bumped. A winner who can no
// longer cover the bid forfeits the item. With no bids the slot is simply
// cleared. Settling with no auction returns ErrNoAuction.
func (m *Manager) Settle(ctx context.Context) (*SettleResult, *effect.Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Settle")
	defer span.End()

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, nil, ErrNoAuction
	}
	a := m.current
	m.current = nil
	m.mu.Unlock()

	result := &SettleResult{ItemID: a.ItemID}
	report := &effect.Report{}

	winner, amount, ok := a.Highest()
	if !ok {
		m.appendEvent(ctx, event.AuctionSettled, event.AuctionSettledData{ItemID: a.ItemID})
		m.logger.InfoContext(ctx, "auction settled without bids",
			slog.String("item_id", a.ItemID),
		)
		return result, report, nil
	}

	if err := m.economy.Debit(ctx, winner, amount, "auction:"+a.ItemID); err != nil {
		if !errors.Is(err, economy.ErrInsufficientFunds) {
			return nil, nil, fmt.Errorf("debiting winner: %w", err)
		}
		// The winner spent their coins since bidding; the win is forfeited
		// and the item goes ungranted.
		result.WinnerID = winner
		result.Amount = amount
		result.Forfeited = true
		m.appendEvent(ctx, event.AuctionSettled, event.AuctionSettledData{ItemID: a.ItemID})
		m.logger.WarnContext(ctx, "auction win forfeited",
			slog.String("item_id", a.ItemID),
			slog.String("player_id", winner),
			slog.Int("amount", amount),
		)
		return result, report, nil
	}

	if _, err := m.inventory.Grant(ctx, winner, a.ItemID); err != nil {
		return nil, nil, fmt.Errorf("granting item to winner: %w", err)
	}
	if err := m.players.Update(ctx, winner, func(p *store.PlayerStats) error {
		if p.Counters == nil {
			p.Counters = make(map[string]int)
		}
		p.Counters[store.CounterAuctionsWon]++
		return nil
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to bump auctions_won",
			slog.String("player_id", winner),
			slog.Any("error", err),
		)
	}

	result.WinnerID = winner
	result.Amount = amount
	m.appendEvent(ctx, event.AuctionSettled, event.AuctionSettledData{
		WinnerID: winner, Amount: amount, ItemID: a.ItemID,
	})

	dm := effect.DirectMessage(winner, fmt.Sprintf("You won the auction for %s at %d coins.", a.ItemID, amount))
	report.Record(dm, "", m.sink.SendDirectMessage(ctx, winner, dm.Content))

	m.logger.InfoContext(ctx, "auction settled",
		slog.String("item_id", a.ItemID),
		slog.String("winner", winner),
		slog.Int("amount", amount),
	)
	return result, report, nil
}

// Recover replays the auction journal and restores an auction that was live
// when the previous leader went down. An auction that expired while nobody
// was leading is restored too, so the settle timer can close it out.
func (m *Manager) Recover(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Recover")
	defer span.End()

	events, err := m.events.Load(ctx, aggregateID)
	if err != nil {
		return fmt.Errorf("loading auction journal: %w", err)
	}

	var open *Auction
	for _, evt := range events {
		switch evt.Type {
		case event.AuctionStarted:
			var data event.AuctionStartedData
			if err := json.Unmarshal(evt.Data, &data); err != nil {
				return fmt.Errorf("decoding start event: %w", err)
			}
			open = &Auction{
				ItemID:    data.ItemID,
				StartedBy: data.StartedBy,
				MinBid:    data.MinBid,
				EndsAt:    data.EndsAt,
				Bids:      make(map[string]int),
			}
		case event.AuctionBid:
			if open == nil {
				continue
			}
			var data event.AuctionBidData
			if err := json.Unmarshal(evt.Data, &data); err != nil {
				return fmt.Errorf("decoding bid event: %w", err)
			}
			open.Bids[data.PlayerID] = data.Amount
		case event.AuctionSettled:
			open = nil
		}
	}
	if open == nil {
		return nil
	}

	m.mu.Lock()
	m.current = open
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "auction recovered from journal",
		slog.String("item_id", open.ItemID),
		slog.Int("bids", len(open.Bids)),
		slog.Time("ends_at", open.EndsAt),
	)
	return nil
}

// Tick settles the auction if its end time has passed. The settle timer in
// main calls this periodically.
func (m *Manager) Tick(ctx context.Context) (*SettleResult, *effect.Report, error) {
	m.mu.Lock()
	due := m.current != nil && m.clk.Now().After(m.current.EndsAt)
	m.mu.Unlock()
	if !due {
		return nil, nil, nil
	}
	return m.Settle(ctx)
}

func (m *Manager) appendEvent(ctx context.Context, t event.Type, payload interface{}) {
	data, _ := json.Marshal(payload)
	if err := m.events.Append(ctx, event.Event{AggregateID: aggregateID, Type: t, Data: data}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append auction event",
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
}
