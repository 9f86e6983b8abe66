package models

import "time"

// ChatMessage represents one chat message on a token's board.
type ChatMessage struct {
	ID        string    `json:"id"`
	Mint      string    `json:"mint"`
	Wallet    string    `json:"wallet"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is the payload for posting a chat message. Field order is
// fixed; the same bytes are embedded in the signed authentication message.
type ChatRequest struct {
	Mint    string `json:"mint"`
	Message string `json:"message"`
}
