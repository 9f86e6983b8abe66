package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"launchflow/auth"
	"launchflow/client"
	"launchflow/config"
	"launchflow/logger"
	"launchflow/models"
	"launchflow/stream"
)

const usage = `usage: launchflow [-config path] <command> [flags]

commands:
  session                     create an authenticated session
  token   <mint>              show one token
  tokens  [-limit] [-offset]  list launched tokens
  trades  -mint [-limit]      list recent trades for a mint
  create  -name -symbol ...   launch a new token
  buy     -mint -amount ...   buy into a bonding curve
  sell    -mint -amount ...   sell into a bonding curve
  chat    -mint -message      post a chat message
  watch   <topic> [-mint]     stream live events (trades, token, chat)
`

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	if err := run(ctx, cfg, log, command, args); err != nil {
		log.WithError(err).WithFields(logger.Fields{"command": command}).Error("command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Log, command string, args []string) error {
	switch command {
	case "session":
		return runSession(ctx, cfg, log)
	case "token":
		return runToken(ctx, cfg, log, args)
	case "tokens":
		return runTokens(ctx, cfg, log, args)
	case "trades":
		return runTrades(ctx, cfg, log, args)
	case "create":
		return runCreate(ctx, cfg, log, args)
	case "buy":
		return runTrade(ctx, cfg, log, models.TradeSideBuy, args)
	case "sell":
		return runTrade(ctx, cfg, log, models.TradeSideSell, args)
	case "chat":
		return runChat(ctx, cfg, log, args)
	case "watch":
		return runWatch(cfg, log, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// newClient wires the API client, loading the wallet keypair when one is
// configured. Read-only commands work without a keypair.
func newClient(cfg *config.Config, log *logger.Log) (*client.Client, error) {
	opts := []client.Option{
		client.WithErrorHook(func(err error) {
			log.WithComponent("cli").WithError(err).Debug("api error hook")
		}),
	}

	if cfg.Auth.KeypairPath != "" {
		signer, err := auth.LoadKeypair(cfg.Auth.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load keypair: %w", err)
		}
		log.WithComponent("cli").WithFields(logger.Fields{"wallet": signer.Wallet()}).Info("keypair loaded")
		opts = append(opts, client.WithSigner(signer))
	}

	return client.New(cfg, opts...), nil
}

func runSession(ctx context.Context, cfg *config.Config, log *logger.Log) error {
	c, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	session, err := c.CreateSession(ctx)
	if err != nil {
		return err
	}
	return printJSON(session)
}

func runToken(ctx context.Context, cfg *config.Config, log *logger.Log, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: launchflow token <mint>")
	}
	c, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	token, err := c.GetToken(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(token)
}

func runTokens(ctx context.Context, cfg *config.Config, log *logger.Log, args []string) error {
	fs := flag.NewFlagSet("tokens", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Maximum number of tokens to return")
	offset := fs.Int("offset", 0, "Listing offset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	tokens, err := c.ListTokens(ctx, *limit, *offset)
	if err != nil {
		return err
	}
	return printJSON(tokens)
}

func runTrades(ctx context.Context, cfg *config.Config, log *logger.Log, args []string) error {
	fs := flag.NewFlagSet("trades", flag.ContinueOnError)
	mint := fs.String("mint", "", "Token mint address")
	limit := fs.Int("limit", 20, "Maximum number of trades to return")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mint == "" {
		return fmt.Errorf("trades requires -mint")
	}

	c, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	trades, err := c.ListTrades(ctx, *mint, *limit)
	if err != nil {
		return err
	}
	return printJSON(trades)
}

func runCreate(ctx context.Context, cfg *config.Config, log *logger.Log, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "Token name")
	symbol := fs.String("symbol", "", "Token symbol")
	description := fs.String("description", "", "Token description")
	image := fs.String("image", "", "Path to token image; uploaded before launch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *symbol == "" {
		return fmt.Errorf("create requires -name and -symbol")
	}

	c, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	req := models.CreateTokenRequest{
		Name:        *name,
		Symbol:      *symbol,
		Description: *description,
	}

	if *image != "" {
		upload, err := c.UploadImage(ctx, *image, *name, *symbol, *description)
		if err != nil {
			return fmt.Errorf("failed to upload image: %w", err)
		}
		log.WithComponent("cli").WithFields(logger.Fields{"metadata_uri": upload.MetadataURI}).Info("image uploaded")
		req.MetadataURI = upload.MetadataURI
	}

	token, err := c.CreateToken(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(token)
}

func runTrade(ctx context.Context, cfg *config.Config, log *logger.Log, side models.TradeSide, args []string) error {
	fs := flag.NewFlagSet(string(side), flag.ContinueOnError)
	mint := fs.String("mint", "", "Token mint address")
	amount := fs.String("amount", "", "Amount in SOL (buy) or tokens (sell)")
	slippage := fs.String("slippage", "0.01", "Accepted slippage fraction")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mint == "" || *amount == "" {
		return fmt.Errorf("%s requires -mint and -amount", side)
	}

	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", *amount, err)
	}
	slip, err := decimal.NewFromString(*slippage)
	if err != nil {
		return fmt.Errorf("invalid slippage %q: %w", *slippage, err)
	}

	c, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	var resp *models.TradeResponse
	if side == models.TradeSideBuy {
		resp, err = c.Buy(ctx, *mint, amt, slip)
	} else {
		resp, err = c.Sell(ctx, *mint, amt, slip)
	}
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runChat(ctx context.Context, cfg *config.Config, log *logger.Log, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	mint := fs.String("mint", "", "Token mint address")
	message := fs.String("message", "", "Message text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mint == "" || *message == "" {
		return fmt.Errorf("chat requires -mint and -message")
	}

	c, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	msg, err := c.SendChat(ctx, *mint, *message)
	if err != nil {
		return err
	}
	return printJSON(msg)
}

// watchChannels maps each stream topic to the channels worth printing for it.
var watchChannels = map[stream.Topic][]string{
	stream.TopicTrades: {stream.ChannelTrade},
	stream.TopicToken:  {stream.ChannelUpdate, stream.ChannelTrade},
	stream.TopicChat:   {stream.ChannelMessage},
}

func runWatch(cfg *config.Config, log *logger.Log, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: launchflow watch <topic> [-mint address]")
	}
	topic := stream.Topic(args[0])
	if !topic.Valid() {
		return fmt.Errorf("unknown topic %q (want trades, token or chat)", args[0])
	}

	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	mint := fs.String("mint", "", "Token mint address to scope the stream to")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if topic != stream.TopicTrades && *mint == "" {
		return fmt.Errorf("watch %s requires -mint", topic)
	}

	var transport stream.Transport
	switch strings.ToLower(cfg.Stream.Transport) {
	case "websocket":
		transport = stream.NewWSTransport()
	default:
		transport = stream.NewSSETransport(stream.PoolSettings{
			MaxIdleConns:    cfg.API.ConnectionPool.MaxIdleConns,
			MaxConnsPerHost: cfg.API.ConnectionPool.MaxConnsPerHost,
			IdleConnTimeout: cfg.API.ConnectionPool.IdleConnTimeout.Duration(),
		})
	}

	registry := stream.NewRegistry(cfg.StreamBaseURL(), transport, stream.Options{
		AutoReconnect:        cfg.Stream.AutoReconnectEnabled(),
		ReconnectDelay:       cfg.Stream.ReconnectDelay.Duration(),
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		Log:                  log,
	})
	defer registry.DisconnectAll()

	conn := registry.GetOrCreate(topic, *mint)
	enc := json.NewEncoder(os.Stdout)

	for _, channel := range watchChannels[topic] {
		channel := channel
		conn.On(channel, func(event any) {
			if err := enc.Encode(map[string]any{"channel": channel, "data": event}); err != nil {
				log.WithComponent("cli").WithError(err).Warn("failed to write event")
			}
		})
	}

	conn.OnConnect(func() {
		log.WithComponent("cli").WithFields(logger.Fields{
			"topic": string(topic),
			"mint":  *mint,
		}).Info("stream connected")
	})
	conn.OnDisconnect(func() {
		log.WithComponent("cli").Warn("stream disconnected")
	})
	conn.OnError(func(err error) {
		log.WithComponent("cli").WithError(err).Warn("stream error")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	registry.DisconnectAll()
	log.Info("launchflow stopped")
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
