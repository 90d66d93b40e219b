package models

// Reason tags a failed external call. Every wallet operation and market poll
// resolves to either a value or one of these.
type Reason string

const (
	ReasonNone Reason = ""

	ReasonNoProvider      Reason = "no_provider"
	ReasonUserRejected    Reason = "user_rejected"
	ReasonSwitchRejected  Reason = "switch_rejected"
	ReasonAddRejected     Reason = "add_rejected"
	ReasonTransport       Reason = "transport_error"
	ReasonMissingAddress  Reason = "missing_address"
	ReasonNetworkMismatch Reason = "network_mismatch"
	ReasonWatchRejected   Reason = "watch_rejected"

	ReasonMarketFetch   Reason = "market_fetch_failed"
	ReasonMarketParse   Reason = "market_parse_failed"
	ReasonConfigMissing Reason = "config_missing"
)

var reasonMessages = map[Reason]string{
	ReasonNoProvider:      "No wallet detected.",
	ReasonUserRejected:    "Connection request rejected.",
	ReasonSwitchRejected:  "Network switch was not approved.",
	ReasonAddRejected:     "Could not add the network to the wallet.",
	ReasonTransport:       "Wallet did not respond.",
	ReasonMissingAddress:  "Token contract address is not configured.",
	ReasonNetworkMismatch: "Wallet is on the wrong network.",
	ReasonWatchRejected:   "Could not add the token to the wallet.",
	ReasonMarketFetch:     "Market data unavailable.",
	ReasonMarketParse:     "Market data unreadable.",
	ReasonConfigMissing:   "Configuration incomplete.",
}

// Message returns a short human readable status for the reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	if r == ReasonNone {
		return ""
	}
	return string(r)
}
