package client

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"launchflow/auth"
	"launchflow/config"
	"launchflow/models"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Launchflow: config.LaunchflowConfig{Name: "test", Version: "0.0.0"},
		API: config.APIConfig{
			BaseURL: baseURL,
			Timeout: config.Duration(5 * time.Second),
			RateLimit: config.RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         100,
			},
		},
	}
}

func testSigner(t *testing.T) *auth.LocalSigner {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := auth.NewLocalSigner(priv)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func TestTradeCarriesVerifiableSignature(t *testing.T) {
	signer := testSigner(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trade" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req models.TradeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}

		// rebuild the canonical message the way the backend verifier would
		message, err := auth.BuildMessage(r.Header.Get(HeaderAction), req, time.Now().Unix())
		if err != nil {
			http.Error(w, "bad message", http.StatusBadRequest)
			return
		}
		if !auth.Verify(message, r.Header.Get(HeaderSignature), r.Header.Get(HeaderWallet)) {
			http.Error(w, `{"error":"bad signature"}`, http.StatusUnauthorized)
			return
		}
		if r.Header.Get(HeaderRequestID) == "" {
			http.Error(w, "missing request id", http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(models.TradeResponse{Signature: "sig123"})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), WithSigner(signer))
	resp, err := c.Buy(context.Background(), "MintA", decimal.RequireFromString("0.5"), decimal.RequireFromString("0.01"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if resp.Signature != "sig123" {
		t.Errorf("signature = %s", resp.Signature)
	}
}

func TestBearerTokenPreferredOverSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			http.Error(w, "wrong auth: "+got, http.StatusUnauthorized)
			return
		}
		if r.Header.Get(HeaderWallet) != "" {
			http.Error(w, "wallet header with bearer auth", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(models.ChatMessage{ID: "m1"})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), WithSigner(testSigner(t)))
	c.SetToken("tok-1", time.Now().Add(time.Hour))

	msg, err := c.SendChat(context.Background(), "MintA", "hello")
	if err != nil {
		t.Fatalf("send chat: %v", err)
	}
	if msg.ID != "m1" {
		t.Errorf("id = %s", msg.ID)
	}
}

func TestExpiredTokenFallsBackToSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			http.Error(w, "expired bearer sent", http.StatusUnauthorized)
			return
		}
		if r.Header.Get(HeaderWallet) == "" || r.Header.Get(HeaderSignature) == "" {
			http.Error(w, "missing signature headers", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(models.ChatMessage{ID: "m1"})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), WithSigner(testSigner(t)))
	c.SetToken("stale", time.Now().Add(-time.Minute))

	if _, err := c.SendChat(context.Background(), "MintA", "hello"); err != nil {
		t.Fatalf("send chat: %v", err)
	}
}

func TestCreateSessionCachesToken(t *testing.T) {
	var sawBearer atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/session":
			if r.Header.Get(HeaderWallet) == "" {
				http.Error(w, "session must be signature-authed", http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(models.SessionResponse{
				Token:     "tok-2",
				ExpiresAt: time.Now().Add(time.Hour),
			})
		case "/chat":
			if r.Header.Get("Authorization") == "Bearer tok-2" {
				sawBearer.Store(true)
			}
			json.NewEncoder(w).Encode(models.ChatMessage{ID: "m1"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), WithSigner(testSigner(t)))

	session, err := c.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Token != "tok-2" {
		t.Errorf("token = %s", session.Token)
	}

	if _, err := c.SendChat(context.Background(), "MintA", "hello"); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	if !sawBearer.Load() {
		t.Error("cached session token was not used")
	}
}

func TestAPIErrorTranslation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"slippage out of range","max":5}`))
	}))
	defer srv.Close()

	var hooked atomic.Int64
	c := New(testConfig(srv.URL), WithSigner(testSigner(t)), WithErrorHook(func(error) { hooked.Add(1) }))

	_, err := c.Buy(context.Background(), "MintA", decimal.NewFromInt(1), decimal.Zero)
	if err == nil {
		t.Fatal("expected error")
	}

	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d", apiErr.Status)
	}
	if apiErr.Message != "slippage out of range" {
		t.Errorf("message = %s", apiErr.Message)
	}
	body, ok := apiErr.Body.(map[string]any)
	if !ok || body["max"] != float64(5) {
		t.Errorf("parsed body = %#v", apiErr.Body)
	}
	if !IsStatus(err, http.StatusBadRequest) {
		t.Error("IsStatus mismatch")
	}
	if hooked.Load() != 1 {
		t.Errorf("error hook fired %d times, want 1", hooked.Load())
	}
}

func TestAPIErrorNonJSONBody(t *testing.T) {
	e := newAPIError(http.StatusBadGateway, []byte("upstream exploded\n"))
	if e.Message != http.StatusText(http.StatusBadGateway) {
		t.Errorf("message = %s", e.Message)
	}
	if e.Body != "upstream exploded" {
		t.Errorf("body = %#v", e.Body)
	}
}

func TestAuthWithoutSignerOrToken(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	if _, err := c.SendChat(context.Background(), "MintA", "hello"); err == nil {
		t.Fatal("expected error without signer or token")
	}
	if hits.Load() != 0 {
		t.Error("request went out without credentials")
	}
}

func TestReadsNeedNoAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" || r.Header.Get(HeaderWallet) != "" {
			http.Error(w, "read carried credentials", http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("mint") != "MintA" || r.URL.Query().Get("limit") != "5" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode([]models.Trade{{Signature: "s1"}})
	}))
	defer srv.Close()

	// no signer configured at all
	c := New(testConfig(srv.URL))
	trades, err := c.ListTrades(context.Background(), "MintA", 5)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Signature != "s1" {
		t.Errorf("trades = %#v", trades)
	}
}
