// Package binance is the concrete transport behind exchange.ControlClient
// and the market/user stream dialers, built on adshao/go-binance futures.
package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2/futures"

	"bandbot/internal/config"
	"bandbot/internal/exchange"
	"bandbot/internal/logger"
)

// Client implements exchange.ControlClient over the futures REST API.
type Client struct {
	api *futures.Client
}

// NewClient builds the signed REST client. Testnet and proxy selection follow
// the market config; credentials must already be populated.
func NewClient(cfg config.MarketConfig) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("binance client requires BINANCE_API_KEY and BINANCE_API_SECRET")
	}
	if cfg.UseTestnet {
		futures.UseTestnet = true
	}

	var api *futures.Client
	if cfg.Proxy.Enabled && strings.TrimSpace(cfg.Proxy.RESTURL) != "" {
		api = futures.NewProxiedClient(cfg.APIKey, cfg.APISecret, cfg.Proxy.RESTURL)
	} else {
		api = futures.NewClient(cfg.APIKey, cfg.APISecret)
	}
	if strings.TrimSpace(cfg.RESTBaseURL) != "" {
		api.BaseURL = cfg.RESTBaseURL
	}
	if timeout := cfg.HTTPTimeout(); timeout > 0 {
		api.HTTPClient.Timeout = timeout
	}
	return &Client{api: api}, nil
}

func (c *Client) GetSymbolRules(ctx context.Context, symbol string) (exchange.SymbolRules, error) {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return exchange.SymbolRules{}, fmt.Errorf("exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules, err := convertSymbolRules(s)
		if err != nil {
			return exchange.SymbolRules{}, fmt.Errorf("parse filters for %s: %w", symbol, err)
		}
		return rules, nil
	}
	return exchange.SymbolRules{}, fmt.Errorf("symbol %s not listed", symbol)
}

// SetIsolatedMargin switches the symbol to isolated margin. The exchange
// rejects a no-op switch with -4046; that is swallowed here.
func (c *Client) SetIsolatedMargin(ctx context.Context, symbol string) error {
	err := c.api.NewChangeMarginTypeService().
		Symbol(symbol).
		MarginType(futures.MarginTypeIsolated).
		Do(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "-4046") {
			logger.Debugf("[binance] %s margin already isolated", symbol)
			return nil
		}
		return fmt.Errorf("set isolated margin %s: %w", symbol, err)
	}
	return nil
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.api.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("set leverage %s x%d: %w", symbol, leverage, err)
	}
	return nil
}

func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(fromOrderSide(req.Side)).
		Type(fromOrderType(req.Type)).
		Quantity(req.Quantity).
		NewClientOrderID(req.ClientID)

	if req.Type == exchange.OrderLimit {
		svc = svc.Price(req.Price).TimeInForce(fromTimeInForce(req.TimeInForce))
	}
	if req.PositionSide != "" && req.PositionSide != exchange.PositionNone {
		// Hedge mode tags direction instead of using reduceOnly.
		svc = svc.PositionSide(fromPositionSide(req.PositionSide))
	} else if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return exchange.OrderAck{}, fmt.Errorf("place %s %s %s: %w", req.Symbol, req.Side, req.Type, err)
	}
	return exchange.OrderAck{
		OrderID:  res.OrderID,
		ClientID: res.ClientOrderID,
		Status:   toOrderStatus(res.Status),
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, clientID string) error {
	_, err := c.api.NewCancelOrderService().
		Symbol(symbol).
		OrigClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("cancel %s %s: %w", symbol, clientID, err)
	}
	return nil
}

func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	if err := c.api.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return fmt.Errorf("cancel all open orders %s: %w", symbol, err)
	}
	return nil
}

func (c *Client) ListOpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	orders, err := c.api.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open orders %s: %w", symbol, err)
	}
	out := make([]exchange.OpenOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, exchange.OpenOrder{
			OrderID:  o.OrderID,
			ClientID: o.ClientOrderID,
			Side:     toOrderSide(o.Side),
			Status:   toOrderStatus(o.Status),
		})
	}
	return out, nil
}

func (c *Client) GetOrderStatus(ctx context.Context, symbol, clientID string) (exchange.OrderStatus, error) {
	o, err := c.api.NewGetOrderService().
		Symbol(symbol).
		OrigClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("get order %s %s: %w", symbol, clientID, err)
	}
	return toOrderStatus(o.Status), nil
}

func (c *Client) GetPositionSnapshot(ctx context.Context, symbol string) (exchange.PositionSnapshot, error) {
	risks, err := c.api.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return exchange.PositionSnapshot{}, fmt.Errorf("position risk %s: %w", symbol, err)
	}
	// One-way mode returns a single row; hedge mode returns LONG and SHORT
	// rows, at most one of which carries exposure for this strategy.
	for _, r := range risks {
		snap := convertPositionRisk(r)
		if !snap.Flat() {
			return snap, nil
		}
	}
	return exchange.PositionSnapshot{Side: exchange.PositionNone}, nil
}

func (c *Client) StartUserStream(ctx context.Context) (string, error) {
	key, err := c.api.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return "", fmt.Errorf("start user stream: %w", err)
	}
	return key, nil
}

func (c *Client) KeepAliveUserStream(ctx context.Context, listenKey string) error {
	if err := c.api.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
		return fmt.Errorf("keepalive user stream: %w", err)
	}
	return nil
}

var _ exchange.ControlClient = (*Client)(nil)
