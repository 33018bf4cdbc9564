// ticktest opens a request channel to Deriv, takes one tick per symbol and
// prints it. With -contract it also prices a contract, and with -buy it buys
// the quoted proposal. With -catalog it lists the catalog's trade types and
// can check a username and password.
//
// Usage: go run ./cmd/ticktest -symbols R_100,R_50 -rounds 3
//
// Environment (also read from .env):
//
//	DERIV_APP_ID - application id (default 1089)
//	DERIV_TOKEN  - API token, required for -balance, -contract and -buy
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/deriv-gateway/internal/api"
	"github.com/rickgao/deriv-gateway/internal/auth"
	"github.com/rickgao/deriv-gateway/internal/channel"
	"github.com/rickgao/deriv-gateway/internal/config"
	"github.com/rickgao/deriv-gateway/internal/deriv"
	"github.com/rickgao/deriv-gateway/internal/model"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	endpoint := flag.String("endpoint", auth.DefaultEndpoint, "WebSocket endpoint")
	symbols := flag.String("symbols", "R_100", "comma-separated symbols")
	rounds := flag.Int("rounds", 1, "tick rounds to take")
	interval := flag.Duration("interval", 2*time.Second, "delay between rounds")
	balance := flag.Bool("balance", false, "print the account balance")
	contract := flag.String("contract", "", "contract type to price, e.g. CALL or DIGITEVEN")
	amount := flag.String("amount", "1", "stake for -contract")
	duration := flag.Int("duration", 5, "contract duration for -contract")
	unit := flag.String("unit", "t", "contract duration unit for -contract")
	buy := flag.Bool("buy", false, "buy the proposal quoted by -contract")
	catalogURL := flag.String("catalog", "", "catalog service base URL; lists trade types when set")
	user := flag.String("user", "", "username to check against the catalog service")
	pass := flag.String("pass", "", "password for -user")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := config.LoadEnv(".env"); err != nil {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	appID := 1089
	if v := os.Getenv("DERIV_APP_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			logger.Error("invalid DERIV_APP_ID", "value", v)
			os.Exit(1)
		}
		appID = id
	}
	creds, err := auth.LoadCredentials(appID, os.Getenv("DERIV_TOKEN"), "")
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	wsURL, err := creds.WebSocketURL(*endpoint)
	if err != nil {
		logger.Error("invalid endpoint", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chCfg := channel.DefaultConfig()
	chCfg.URL = wsURL
	ch := channel.New(chCfg, logger)
	if err := ch.Open(ctx); err != nil {
		logger.Error("failed to open channel", "error", err)
		os.Exit(1)
	}
	defer ch.Close()

	session := deriv.NewSession(ch, creds.Token, logger, deriv.WithRecorder(printRecorder{}))

	start := time.Now()
	if err := session.Ping(ctx); err != nil {
		logger.Error("ping failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("ping ok in %s\n", time.Since(start).Round(time.Millisecond))

	list := strings.Split(*symbols, ",")
	for round := range *rounds {
		if round > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(*interval):
			}
		}
		takeTicks(ctx, session, list, logger)
	}

	if *balance {
		b, err := session.Balance(ctx)
		if err != nil {
			logger.Error("balance failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("balance %s %s (%s)\n", b.Balance, b.Currency, b.LoginID)
	}

	if *contract != "" {
		stake, err := decimal.NewFromString(*amount)
		if err != nil {
			logger.Error("invalid amount", "value", *amount)
			os.Exit(1)
		}
		if err := quote(ctx, session, deriv.ProposalRequest{
			Symbol:       list[0],
			ContractType: *contract,
			Amount:       stake,
			Duration:     *duration,
			DurationUnit: *unit,
		}, *buy); err != nil {
			logger.Error("contract failed", "error", err)
			os.Exit(1)
		}
	}

	if *catalogURL != "" {
		if err := checkCatalog(ctx, api.NewClient(*catalogURL, os.Getenv("CATALOG_TOKEN"), api.WithLogger(logger)), *user, *pass); err != nil {
			logger.Error("catalog check failed", "error", err)
			os.Exit(1)
		}
	}

	st := ch.Stats()
	fmt.Printf("sent=%d received=%d dropped=%d timeouts=%d\n", st.Sent, st.Received, st.Dropped, st.Timeouts)
}

// takeTicks requests one tick for every symbol concurrently.
func takeTicks(ctx context.Context, session *deriv.Session, symbols []string, logger *slog.Logger) {
	var g errgroup.Group
	g.SetLimit(8)
	for _, sym := range symbols {
		sym := strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		g.Go(func() error {
			tick, err := session.LatestTick(ctx, sym)
			if err != nil {
				logger.Warn("tick failed", "symbol", sym, "error", err)
				return nil
			}
			fmt.Printf("%-12s %s  quote=%s  digit=%d\n",
				tick.Symbol,
				time.Unix(tick.Epoch, 0).UTC().Format(time.TimeOnly),
				tick.Quote.StringFixed(-tick.Pip.Exponent()),
				tick.LastDigit(),
			)
			return nil
		})
	}
	g.Wait()
}

func quote(ctx context.Context, session *deriv.Session, req deriv.ProposalRequest, buy bool) error {
	p, err := session.Proposal(ctx, req)
	if err != nil {
		return fmt.Errorf("proposal: %w", err)
	}
	fmt.Printf("proposal %s ask=%s payout=%s\n  %s\n", p.ID, p.AskPrice, p.Payout, p.LongCode)
	if !buy {
		return nil
	}

	receipt, err := session.Buy(ctx, p.ID, p.AskPrice)
	if err != nil {
		return fmt.Errorf("buy: %w", err)
	}
	fmt.Printf("bought contract %d price=%s balance_after=%s\n",
		receipt.ContractID, receipt.BuyPrice, receipt.BalanceAfter)
	return nil
}

func checkCatalog(ctx context.Context, catalog *api.Client, user, pass string) error {
	if user != "" {
		ok, err := catalog.CheckCredentials(ctx, user, pass)
		if err != nil {
			return fmt.Errorf("check credentials: %w", err)
		}
		fmt.Printf("credentials for %s valid=%v\n", user, ok)
	}

	types, err := catalog.GetTradeTypes(ctx)
	if err != nil {
		return fmt.Errorf("trade types: %w", err)
	}
	for _, tt := range types {
		fmt.Printf("%-14s %-10s barriers=%d min=%s\n", tt.ContractType, tt.Category, tt.Barriers, tt.MinDuration)
	}
	return nil
}

// printRecorder prints bought contracts instead of journalling them.
type printRecorder struct{}

func (printRecorder) RecordContract(c model.Contract) error {
	fmt.Printf("journal %s contract=%d %s %s max_profit=%s\n",
		c.JournalID, c.ContractID, c.Symbol, c.ContractType, c.MaxProfit())
	return nil
}
