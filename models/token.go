package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token represents a launched token as returned by the backend.
type Token struct {
	Mint            string          `json:"mint"`
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	Description     string          `json:"description,omitempty"`
	ImageURI        string          `json:"image_uri,omitempty"`
	MetadataURI     string          `json:"metadata_uri,omitempty"`
	Creator         string          `json:"creator"`
	MarketCapSol    decimal.Decimal `json:"market_cap_sol"`
	VirtualSolRes   decimal.Decimal `json:"virtual_sol_reserves"`
	VirtualTokenRes decimal.Decimal `json:"virtual_token_reserves"`
	Complete        bool            `json:"complete"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CreateTokenRequest is the payload for launching a new token. Field order is
// fixed; the same bytes are embedded in the signed authentication message.
type CreateTokenRequest struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
	MetadataURI string `json:"metadata_uri,omitempty"`
}

// UploadResponse carries the metadata URI minted for an uploaded image.
type UploadResponse struct {
	MetadataURI string `json:"metadata_uri"`
	ImageURI    string `json:"image_uri,omitempty"`
}

// SessionResponse is returned by the session endpoint after a successful
// signature login.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Wallet    string    `json:"wallet"`
}
