package payment

import "context"

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type RemoteOrder struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

type RemotePayment struct {
	ID       string
	OrderID  string
	Amount   int64
	Currency string
	Status   string // created, authorized, captured, refunded, failed
}

// Settled reports whether the provider considers the money collected.
func (p *RemotePayment) Settled() bool {
	return p.Status == "captured" || p.Status == "authorized"
}

// Provider is the payment gateway.
type Provider interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*RemoteOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*RemotePayment, error)
}
