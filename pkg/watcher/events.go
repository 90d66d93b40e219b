package watcher

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventMarketUpdated EventType = "market_updated"
	EventWalletUpdated EventType = "wallet_updated"
)

// Event represents a monitoring event.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
