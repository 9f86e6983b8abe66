package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"

	"launchflow/auth"
	"launchflow/logger"
	"launchflow/models"
)

// CreateSession performs a signature login and caches the returned bearer
// token for subsequent requests. Any previously cached token is dropped
// first so the request always goes out wallet-signed.
func (c *Client) CreateSession(ctx context.Context) (*models.SessionResponse, error) {
	c.ClearToken()

	data, err := c.do(ctx, http.MethodPost, "/auth/session", nil, nil, true, auth.ActionSession)
	if err != nil {
		return nil, err
	}

	var session models.SessionResponse
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	c.SetToken(session.Token, session.ExpiresAt)

	c.log.WithFields(logger.Fields{"wallet": session.Wallet}).Info("session created")
	return &session, nil
}

// GetToken fetches one launched token by mint address.
func (c *Client) GetToken(ctx context.Context, mint string) (*models.Token, error) {
	data, err := c.do(ctx, http.MethodGet, "/tokens/"+url.PathEscape(mint), nil, nil, false, "")
	if err != nil {
		return nil, err
	}
	var token models.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &token, nil
}

// ListTokens pages through launched tokens.
func (c *Client) ListTokens(ctx context.Context, limit, offset int) ([]models.Token, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	data, err := c.do(ctx, http.MethodGet, "/tokens", query, nil, false, "")
	if err != nil {
		return nil, err
	}
	var tokens []models.Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode tokens: %w", err)
	}
	return tokens, nil
}

// ListTrades fetches recent trades for a mint, newest first.
func (c *Client) ListTrades(ctx context.Context, mint string, limit int) ([]models.Trade, error) {
	query := url.Values{"mint": {mint}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	data, err := c.do(ctx, http.MethodGet, "/trades", query, nil, false, "")
	if err != nil {
		return nil, err
	}
	var trades []models.Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("failed to decode trades: %w", err)
	}
	return trades, nil
}

// CreateToken launches a new token.
func (c *Client) CreateToken(ctx context.Context, req models.CreateTokenRequest) (*models.Token, error) {
	data, err := c.do(ctx, http.MethodPost, "/tokens", nil, req, true, auth.ActionCreate)
	if err != nil {
		return nil, err
	}
	var token models.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode created token: %w", err)
	}
	return &token, nil
}

// Buy submits a buy order denominated in SOL.
func (c *Client) Buy(ctx context.Context, mint string, amount, slippage decimal.Decimal) (*models.TradeResponse, error) {
	return c.trade(ctx, models.TradeRequest{
		Mint:     mint,
		Side:     models.TradeSideBuy,
		Amount:   amount,
		Slippage: slippage,
	})
}

// Sell submits a sell order denominated in tokens.
func (c *Client) Sell(ctx context.Context, mint string, amount, slippage decimal.Decimal) (*models.TradeResponse, error) {
	return c.trade(ctx, models.TradeRequest{
		Mint:     mint,
		Side:     models.TradeSideSell,
		Amount:   amount,
		Slippage: slippage,
	})
}

func (c *Client) trade(ctx context.Context, req models.TradeRequest) (*models.TradeResponse, error) {
	data, err := c.do(ctx, http.MethodPost, "/trade", nil, req, true, auth.ActionTrade)
	if err != nil {
		return nil, err
	}
	var resp models.TradeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode trade response: %w", err)
	}
	return &resp, nil
}

// SendChat posts a message to a token's chat board.
func (c *Client) SendChat(ctx context.Context, mint, message string) (*models.ChatMessage, error) {
	req := models.ChatRequest{Mint: mint, Message: message}

	data, err := c.do(ctx, http.MethodPost, "/chat", nil, req, true, auth.ActionChat)
	if err != nil {
		return nil, err
	}
	var msg models.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode chat message: %w", err)
	}
	return &msg, nil
}

// UploadImage uploads token artwork plus metadata and returns the minted
// metadata URI. The metadata fields, not the image bytes, are what gets
// embedded into the signed message.
func (c *Client) UploadImage(ctx context.Context, imagePath, name, symbol, description string) (*models.UploadResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	file, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	meta := map[string]string{"name": name, "symbol": symbol, "description": description}
	for key, value := range meta {
		if err := form.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if err := c.attachAuth(req.Header, meta, auth.ActionCreate); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, data)
		if c.errorHook != nil {
			c.errorHook(apiErr)
		}
		return nil, apiErr
	}

	var upload models.UploadResponse
	if err := json.Unmarshal(data, &upload); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &upload, nil
}
