package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hackgods/medverify-booking/internal/apperr"
)

// RazorpayClient talks to the Razorpay REST API with key id/secret basic auth.
type RazorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	return &RazorpayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: timeout},
	}
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type razorpayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*RemoteOrder, error) {
	body := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var out razorpayOrder
	if err := c.do(ctx, http.MethodPost, "/orders", body, &out); err != nil {
		return nil, err
	}
	return &RemoteOrder{ID: out.ID, Amount: out.Amount, Currency: out.Currency, Status: out.Status}, nil
}

func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (*RemotePayment, error) {
	var out razorpayPayment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return nil, err
	}
	return &RemotePayment{
		ID:       out.ID,
		OrderID:  out.OrderID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Status:   out.Status,
	}, nil
}

// do sends one request. Transport failures, timeouts and non-2xx answers all
// surface as ProviderError.
func (c *RazorpayClient) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode razorpay request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build razorpay request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return apperr.Wrap(apperr.KindProvider, err, "payment provider timed out")
		}
		return apperr.Wrap(apperr.KindProvider, err, "payment provider unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "read payment provider response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var rerr razorpayError
		_ = json.Unmarshal(raw, &rerr)
		return apperr.Wrap(apperr.KindProvider,
			fmt.Errorf("status %d: %s %s", resp.StatusCode, rerr.Error.Code, rerr.Error.Description),
			"payment provider rejected request")
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindProvider, err, "decode payment provider response")
	}
	return nil
}
