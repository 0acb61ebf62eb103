package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

const usage = `papercli talks to a running paperd.

Usage:
  papercli keygen
  papercli [-api URL] portfolio -account ADDR
  papercli [-api URL] orders    -account ADDR [-active]
  papercli [-api URL] place     -account ADDR -symbol BTC-USDT -side buy -type market -qty 0.1 [-limit P] [-stop P] [-leverage N] [-sl P] [-tp P] [-ttl 1h]
  papercli [-api URL] order     -account ADDR -id ORDER_ID
  papercli [-api URL] cancel    -account ADDR -id ORDER_ID
  papercli [-api URL] positions -account ADDR [-closed]
  papercli [-api URL] position  -account ADDR -id POSITION_ID
  papercli [-api URL] close     -account ADDR -id POSITION_ID
  papercli [-api URL] deposit   -account ADDR -amount 1000
  papercli [-api URL] price     -symbol BTC-USDT
`

func main() {
	api := flag.String("api", envOr("PAPERD_URL", "http://localhost:8080"), "paperd base URL")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := &client{base: strings.TrimRight(*api, "/") + "/api/v1", http: &http.Client{Timeout: 10 * time.Second}}

	var err error
	switch args[0] {
	case "keygen":
		err = keygen()
	case "portfolio":
		err = c.portfolio(args[1:])
	case "orders":
		err = c.orders(args[1:])
	case "order":
		err = c.getByID("order", "orders", args[1:])
	case "place":
		err = c.place(args[1:])
	case "cancel":
		err = c.cancel(args[1:])
	case "positions":
		err = c.positions(args[1:])
	case "position":
		err = c.getByID("position", "positions", args[1:])
	case "close":
		err = c.closePosition(args[1:])
	case "deposit":
		err = c.deposit(args[1:])
	case "price":
		err = c.price(args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// keygen prints a fresh account address. Paper accounts are keyed by address
// only, so the private key is shown for reuse with a live venue later.
func keygen() error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	fmt.Printf("Address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Printf("Private Key: %x (KEEP SECRET!)\n", crypto.FromECDSA(key))
	return nil
}

type client struct {
	base string
	http *http.Client
}

func (c *client) portfolio(args []string) error {
	fs := flag.NewFlagSet("portfolio", flag.ExitOnError)
	account := fs.String("account", "", "account address")
	fs.Parse(args)
	return c.do(http.MethodGet, accountPath(*account, "portfolio"), nil)
}

func (c *client) orders(args []string) error {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	account := fs.String("account", "", "account address")
	active := fs.Bool("active", false, "only pending/open/partially filled")
	fs.Parse(args)
	path := accountPath(*account, "orders")
	if *active {
		path += "?status=active"
	}
	return c.do(http.MethodGet, path, nil)
}

// getByID fetches one order or position, terminal or closed ones included.
func (c *client) getByID(name, collection string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	account := fs.String("account", "", "account address")
	id := fs.String("id", "", name+" ID")
	fs.Parse(args)
	return c.do(http.MethodGet, accountPath(*account, collection+"/"+*id), nil)
}

func (c *client) place(args []string) error {
	fs := flag.NewFlagSet("place", flag.ExitOnError)
	account := fs.String("account", "", "account address")
	symbol := fs.String("symbol", "BTC-USDT", "market symbol")
	side := fs.String("side", "buy", "buy or sell")
	typ := fs.String("type", "market", "market, limit, stop or stop_limit")
	qty := fs.String("qty", "", "base quantity")
	limit := fs.String("limit", "", "limit price")
	stop := fs.String("stop", "", "stop trigger price")
	leverage := fs.String("leverage", "", "leverage multiple")
	sl := fs.String("sl", "", "stop-loss price")
	tp := fs.String("tp", "", "take-profit price")
	ttl := fs.Duration("ttl", 0, "expire the order after this long")
	strategy := fs.String("strategy", "", "strategy name")
	fs.Parse(args)

	req := order.Request{
		Symbol:       *symbol,
		Side:         order.Side(strings.ToLower(*side)),
		Type:         order.Type(strings.ToLower(*typ)),
		StrategyName: *strategy,
	}
	var err error
	if req.Qty, err = decimal.NewFromString(*qty); err != nil {
		return fmt.Errorf("invalid -qty: %w", err)
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.NullDecimal
	}{
		{"limit", *limit, &req.LimitPrice},
		{"stop", *stop, &req.StopPrice},
		{"leverage", *leverage, &req.Leverage},
		{"sl", *sl, &req.StopLoss},
		{"tp", *tp, &req.TakeProfit},
	} {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("invalid -%s: %w", f.name, err)
		}
		*f.dst = decimal.NewNullDecimal(d)
	}
	if *ttl > 0 {
		req.ExpiresAt = time.Now().UTC().Add(*ttl)
	}
	return c.do(http.MethodPost, accountPath(*account, "orders"), req)
}

func (c *client) cancel(args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	account := fs.String("account", "", "account address")
	id := fs.String("id", "", "order ID")
	fs.Parse(args)
	return c.do(http.MethodDelete, accountPath(*account, "orders/"+*id), nil)
}

func (c *client) positions(args []string) error {
	fs := flag.NewFlagSet("positions", flag.ExitOnError)
	account := fs.String("account", "", "account address")
	closed := fs.Bool("closed", false, "show closed positions")
	fs.Parse(args)
	path := accountPath(*account, "positions")
	if *closed {
		path += "?status=closed"
	}
	return c.do(http.MethodGet, path, nil)
}

func (c *client) closePosition(args []string) error {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	account := fs.String("account", "", "account address")
	id := fs.String("id", "", "position ID")
	fs.Parse(args)
	return c.do(http.MethodPost, accountPath(*account, "positions/"+*id+"/close"), nil)
}

func (c *client) deposit(args []string) error {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	account := fs.String("account", "", "account address")
	amount := fs.String("amount", "", "quote amount to credit")
	fs.Parse(args)
	d, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("invalid -amount: %w", err)
	}
	return c.do(http.MethodPost, accountPath(*account, "deposit"), map[string]decimal.Decimal{"amount": d})
}

func (c *client) price(args []string) error {
	fs := flag.NewFlagSet("price", flag.ExitOnError)
	symbol := fs.String("symbol", "BTC-USDT", "market symbol")
	fs.Parse(args)
	return c.do(http.MethodGet, "/prices/"+*symbol, nil)
}

// do sends the request and pretty-prints the JSON reply. Non-2xx replies are
// printed too and turned into an error.
func (c *client) do(method, path string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if json.Indent(&out, raw, "", "  ") != nil {
		out.Reset()
		out.Write(raw)
	}
	fmt.Println(out.String())

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func accountPath(account, rest string) string {
	return "/accounts/" + account + "/" + rest
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
