package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide distinguishes buys from sells.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade represents one settled trade as reported by the backend.
type Trade struct {
	Signature    string          `json:"signature"`
	Mint         string          `json:"mint"`
	Wallet       string          `json:"wallet"`
	Side         TradeSide       `json:"side"`
	SolAmount    decimal.Decimal `json:"sol_amount"`
	TokenAmount  decimal.Decimal `json:"token_amount"`
	MarketCapSol decimal.Decimal `json:"market_cap_sol"`
	Timestamp    time.Time       `json:"timestamp"`
}

// TradeRequest is the payload for submitting a buy or sell. Field order is
// fixed; the same bytes are embedded in the signed authentication message.
type TradeRequest struct {
	Mint     string          `json:"mint"`
	Side     TradeSide       `json:"side"`
	Amount   decimal.Decimal `json:"amount"`
	Slippage decimal.Decimal `json:"slippage"`
}

// TradeResponse acknowledges a submitted trade.
type TradeResponse struct {
	Signature string `json:"signature"`
	Trade     *Trade `json:"trade,omitempty"`
}
