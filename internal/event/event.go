package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	PlayerCredited Type = "player.credited"
	PlayerDebited  Type = "player.debited"
	PlayerLeveled  Type = "player.leveled"

	ClanCreated   Type = "clan.created"
	ClanDisbanded Type = "clan.disbanded"

	MissionCompleted Type = "mission.completed"
	MilestoneReached Type = "milestone.reached"

	AuctionStarted Type = "auction.started"
	AuctionBid     Type = "auction.bid"
	AuctionSettled Type = "auction.settled"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// BalanceChangeData is the payload for credit/debit events.
type BalanceChangeData struct {
	PlayerID string `json:"player_id"`
	XP       int    `json:"xp,omitempty"`
	Coins    int    `json:"coins"`
	Reason   string `json:"reason"`
}

// LevelUpData is the payload for PlayerLeveled events.
type LevelUpData struct {
	PlayerID string `json:"player_id"`
	Level    int    `json:"level"`
	Gained   int    `json:"gained"`
}

// ClanLifecycleData is the payload for clan lifecycle events.
type ClanLifecycleData struct {
	ClanID string `json:"clan_id"`
	Name   string `json:"name"`
	Leader string `json:"leader"`
}

// MissionCompletedData is the payload for MissionCompleted events.
type MissionCompletedData struct {
	PlayerID   string `json:"player_id"`
	TemplateID string `json:"template_id"`
	Weekly     bool   `json:"weekly"`
}

// MilestoneReachedData is the payload for MilestoneReached events.
type MilestoneReachedData struct {
	PlayerID    string `json:"player_id"`
	MilestoneID string `json:"milestone_id"`
	Tier        int    `json:"tier"`
}

// AuctionStartedData is the payload for AuctionStarted events.
type AuctionStartedData struct {
	ItemID    string    `json:"item_id"`
	StartedBy string    `json:"started_by"`
	MinBid    int       `json:"min_bid"`
	EndsAt    time.Time `json:"ends_at"`
}

// AuctionBidData is the payload for AuctionBid events.
type AuctionBidData struct {
	PlayerID string `json:"player_id"`
	Amount   int    `json:"amount"`
}

// AuctionSettledData is the payload for AuctionSettled events. WinnerID is
// empty when the auction closed without bids.
type AuctionSettledData struct {
	WinnerID string `json:"winner_id,omitempty"`
	Amount   int    `json:"amount,omitempty"`
	ItemID   string `json:"item_id"`
}
