package exchange

import "context"

// ControlClient executes signed control-plane calls against the exchange.
// All methods are safe for concurrent use; timeouts are owned by the
// transport, callers pass a context for cancellation.
type ControlClient interface {
	// GetSymbolRules fetches the quantization filters for one symbol.
	GetSymbolRules(ctx context.Context, symbol string) (SymbolRules, error)

	// SetIsolatedMargin switches the symbol to isolated margin. An
	// already-isolated symbol is not an error.
	SetIsolatedMargin(ctx context.Context, symbol string) error

	SetLeverage(ctx context.Context, symbol string, leverage int) error

	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)

	// CancelOrder cancels by the submitter-assigned client id.
	CancelOrder(ctx context.Context, symbol, clientID string) error

	// CancelAllOpenOrders sweeps every resting order for the symbol.
	CancelAllOpenOrders(ctx context.Context, symbol string) error

	// ListOpenOrders returns every resting order for the symbol.
	ListOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	GetOrderStatus(ctx context.Context, symbol, clientID string) (OrderStatus, error)

	GetPositionSnapshot(ctx context.Context, symbol string) (PositionSnapshot, error)

	// StartUserStream acquires a listen key for the account stream.
	StartUserStream(ctx context.Context) (string, error)

	KeepAliveUserStream(ctx context.Context, listenKey string) error
}
