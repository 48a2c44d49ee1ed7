package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hackgods/medverify-booking/internal/appointment"
	"github.com/hackgods/medverify-booking/internal/auth"
	"github.com/hackgods/medverify-booking/internal/identity"
	"github.com/hackgods/medverify-booking/internal/notify"
	"github.com/hackgods/medverify-booking/internal/otp"
	"github.com/hackgods/medverify-booking/internal/payment"
)

const paymentSecret = "rzp_secret"

type inbox struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func (b *inbox) Send(_ context.Context, to string, _ notify.Channel, msg notify.Message) (notify.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs[to] = append(b.msgs[to], msg.Body)
	return notify.Receipt{MessageID: fmt.Sprintf("m%d", len(b.msgs[to]))}, nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (b *inbox) lastCode(t *testing.T, to string) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.msgs[to]
	if len(msgs) == 0 {
		t.Fatalf("no message for %s", to)
	}
	code := codePattern.FindString(msgs[len(msgs)-1])
	if code == "" {
		t.Fatalf("no code in %q", msgs[len(msgs)-1])
	}
	return code
}

type stubProvider struct {
	mu sync.Mutex
	n  int
}

func (p *stubProvider) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.RemoteOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return &payment.RemoteOrder{ID: fmt.Sprintf("order_%d", p.n), Amount: req.Amount, Currency: req.Currency}, nil
}

func (p *stubProvider) FetchPayment(context.Context, string) (*payment.RemotePayment, error) {
	return nil, fmt.Errorf("not used")
}

type testServer struct {
	srv        *httptest.Server
	inbox      *inbox
	identities *identity.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	box := &inbox{msgs: map[string][]string{}}
	identities := identity.NewService(identity.NewMemoryRepository(), identity.BcryptHasher{Cost: 4}, nil)
	ledger := appointment.NewService(appointment.NewMemoryRepository(), identities, nil)
	otpSvc := otp.NewService(otp.NewMemoryRepository(), otp.NewMemoryCounter(), box, otp.Options{}, nil)
	payments := payment.NewService(payment.NewMemoryRepository(), ledger, identities, &stubProvider{}, nil, box,
		payment.Options{KeyID: "rzp_key", KeySecret: paymentSecret, NotifyTimeout: time.Second}, nil)

	h := NewRouter(RouterConfig{
		OTP:             otpSvc,
		Identities:      identities,
		IdentityService: identities,
		Ledger:          ledger,
		Payments:        payments,
		Sessions:        auth.NewIssuer("jwt-secret", time.Hour),
		Env:             "test",
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, inbox: box, identities: identities}
}

type result struct {
	Status    int
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	ErrorKind string          `json:"errorKind"`
	Fields    []string        `json:"fields"`
}

func (ts *testServer) call(t *testing.T, method, path, token string, body any) result {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	out.Status = resp.StatusCode
	return out
}

func decodeData[T any](t *testing.T, r result) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(r.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
	return v
}

func (ts *testServer) login(t *testing.T, identifier string) (string, IdentityResponse) {
	t.Helper()

	typ := "phone"
	if strings.Contains(identifier, "@") {
		typ = "email"
	}
	res := ts.call(t, http.MethodPost, "/v1/auth/otp/request", "", OTPRequest{Identifier: identifier, Type: typ})
	if res.Status != http.StatusOK {
		t.Fatalf("request otp: %d %s", res.Status, res.Error)
	}
	code := ts.inbox.lastCode(t, identifier)

	res = ts.call(t, http.MethodPost, "/v1/auth/otp/verify", "", OTPVerifyRequest{Identifier: identifier, Type: typ, Code: code})
	if res.Status != http.StatusOK {
		t.Fatalf("verify otp: %d %s", res.Status, res.Error)
	}
	sess := decodeData[SessionResponse](t, res)
	return sess.Token, sess.User
}

func completeForm() map[string]string {
	return map[string]string{
		"firstName": "A", "lastName": "B", "email": "a@b.com",
		"phone": "+911234567890", "dateOfBirth": "1990-04-01", "gender": "female",
		"nationality": "Indian", "maritalStatus": "single",
		"passportNumber": "A1234567", "confirmPassportNumber": "A1234567",
		"passportIssueDate": "2020-01-01", "passportIssuePlace": "Mumbai",
		"passportExpiryDate": "2030-01-01", "visaType": "work", "position": "nurse",
		"country": "India", "city": "Mumbai", "appointmentType": "standard",
	}
}

func TestBookingFlowEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	token, user := ts.login(t, "+911234567890")

	res := ts.call(t, http.MethodPut, "/v1/appointments/draft", token, map[string]string{"firstName": "A"})
	if res.Status != http.StatusOK {
		t.Fatalf("save draft: %d %s", res.Status, res.Error)
	}
	res = ts.call(t, http.MethodPut, "/v1/appointments/draft", token, map[string]string{"lastName": "B", "email": "a@b.com"})
	if res.Status != http.StatusOK {
		t.Fatalf("save draft: %d %s", res.Status, res.Error)
	}

	res = ts.call(t, http.MethodGet, "/v1/appointments/draft", token, nil)
	draft := decodeData[AppointmentResponse](t, res)
	if draft.Fields["firstName"] != "A" || draft.Fields["lastName"] != "B" || draft.Fields["email"] != "a@b.com" {
		t.Fatalf("draft missing merged fields: %v", draft.Fields)
	}

	res = ts.call(t, http.MethodPost, "/v1/appointments/finalize", token, completeForm())
	if res.Status != http.StatusOK {
		t.Fatalf("finalize: %d %s %v", res.Status, res.Error, res.Fields)
	}
	appt := decodeData[AppointmentResponse](t, res)
	if appt.ID != draft.ID || appt.Status != "payment_pending" {
		t.Fatalf("unexpected finalized appointment %+v", appt)
	}

	res = ts.call(t, http.MethodPost, "/v1/payments/orders", token, CreateOrderRequest{AppointmentID: appt.ID.String()})
	if res.Status != http.StatusCreated {
		t.Fatalf("create order: %d %s", res.Status, res.Error)
	}
	order := decodeData[payment.Order](t, res)
	if order.Amount != payment.PriceFor("standard") {
		t.Errorf("amount %d, want %d", order.Amount, payment.PriceFor("standard"))
	}

	res = ts.call(t, http.MethodPost, "/v1/payments/verify", token, VerifyPaymentRequest{
		OrderID:       order.OrderID,
		PaymentID:     "pay_1",
		Signature:     payment.Sign(paymentSecret, order.OrderID, "pay_1"),
		AppointmentID: appt.ID.String(),
	})
	if res.Status != http.StatusOK {
		t.Fatalf("verify payment: %d %s", res.Status, res.Error)
	}

	res = ts.call(t, http.MethodGet, "/v1/appointments/"+appt.ID.String(), token, nil)
	final := decodeData[AppointmentResponse](t, res)
	if final.Status != "confirmed" || final.PaymentStatus != "completed" {
		t.Errorf("appointment not confirmed: %+v", final)
	}

	ident, err := ts.identities.Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if ident.PaymentStatus != identity.PaymentPaid {
		t.Errorf("identity payment status %s", ident.PaymentStatus)
	}
	if ident.Email != nil || ident.ContactEmail != "a@b.com" {
		t.Errorf("form email must stay a contact detail, got email=%v contact=%q", ident.Email, ident.ContactEmail)
	}

	// the owner of that email signs in to a separate identity
	_, other := ts.login(t, "a@b.com")
	if other.ID == user.ID {
		t.Error("verifying the form email joined the booking identity")
	}
}

func TestErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.login(t, "+919999999999")

	res := ts.call(t, http.MethodGet, "/v1/appointments/draft", "", nil)
	if res.Status != http.StatusUnauthorized || res.ErrorKind != "Unauthorized" {
		t.Errorf("expected 401 Unauthorized, got %d %s", res.Status, res.ErrorKind)
	}

	form := completeForm()
	form["confirmPassportNumber"] = "A1234568"
	res = ts.call(t, http.MethodPost, "/v1/appointments/finalize", token, form)
	if res.Status != http.StatusBadRequest || res.ErrorKind != "MismatchError" || res.Success {
		t.Errorf("expected 400 MismatchError, got %d %s", res.Status, res.ErrorKind)
	}

	res = ts.call(t, http.MethodPost, "/v1/appointments/finalize", token, map[string]string{"firstName": "A"})
	if res.Status != http.StatusBadRequest || res.ErrorKind != "ValidationError" || len(res.Fields) == 0 {
		t.Errorf("expected 400 ValidationError with fields, got %d %s %v", res.Status, res.ErrorKind, res.Fields)
	}

	res = ts.call(t, http.MethodPost, "/v1/payments/verify", token, VerifyPaymentRequest{
		OrderID: "order_x", PaymentID: "pay_x", Signature: "00", AppointmentID: "not-a-uuid",
	})
	if res.Status != http.StatusBadRequest || res.ErrorKind != "ValidationError" {
		t.Errorf("expected 400 for bad appointment id, got %d %s", res.Status, res.ErrorKind)
	}
}

func TestOTPRateLimitOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		res := ts.call(t, http.MethodPost, "/v1/auth/otp/request", "", OTPRequest{Identifier: "+911112223334", Type: "phone"})
		if res.Status != http.StatusOK {
			t.Fatalf("request %d: %d %s", i, res.Status, res.Error)
		}
	}
	res := ts.call(t, http.MethodPost, "/v1/auth/otp/request", "", OTPRequest{Identifier: "+911112223334", Type: "phone"})
	if res.Status != http.StatusTooManyRequests || res.ErrorKind != "RateLimited" {
		t.Errorf("expected 429 RateLimited, got %d %s", res.Status, res.ErrorKind)
	}

	res = ts.call(t, http.MethodPost, "/v1/auth/otp/request", "", OTPRequest{Identifier: "not-a-phone", Type: "phone"})
	if res.Status != http.StatusBadRequest || res.ErrorKind != "InvalidIdentifier" {
		t.Errorf("expected 400 InvalidIdentifier, got %d %s", res.Status, res.ErrorKind)
	}
}

func TestForeignAppointmentLooksMissing(t *testing.T) {
	ts := newTestServer(t)
	owner, _ := ts.login(t, "+911234500001")
	other, _ := ts.login(t, "+911234500002")

	res := ts.call(t, http.MethodPost, "/v1/appointments/finalize", owner, completeForm())
	if res.Status != http.StatusOK {
		t.Fatalf("finalize: %d %s", res.Status, res.Error)
	}
	appt := decodeData[AppointmentResponse](t, res)

	res = ts.call(t, http.MethodGet, "/v1/appointments/"+appt.ID.String(), other, nil)
	if res.Status != http.StatusNotFound {
		t.Errorf("expected 404 for another user's appointment, got %d", res.Status)
	}

	res = ts.call(t, http.MethodPost, "/v1/payments/orders", other, CreateOrderRequest{AppointmentID: appt.ID.String()})
	if res.Status != http.StatusForbidden {
		t.Errorf("expected 403 ordering another user's appointment, got %d", res.Status)
	}
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	if _, err := ts.identities.CreateAdmin(ctx, "ops@example.com", "Ops", "s3cret-pass"); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	userToken, _ := ts.login(t, "+911234500003")

	res := ts.call(t, http.MethodPost, "/v1/admin/login", "", AdminLoginRequest{Email: "ops@example.com", Password: "wrong"})
	if res.Status != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", res.Status)
	}

	res = ts.call(t, http.MethodPost, "/v1/admin/login", "", AdminLoginRequest{Email: "ops@example.com", Password: "s3cret-pass"})
	if res.Status != http.StatusOK {
		t.Fatalf("admin login: %d %s", res.Status, res.Error)
	}
	adminToken := decodeData[SessionResponse](t, res).Token

	res = ts.call(t, http.MethodPost, "/v1/appointments/finalize", userToken, completeForm())
	appt := decodeData[AppointmentResponse](t, res)

	res = ts.call(t, http.MethodGet, "/v1/admin/appointments/"+appt.ID.String(), adminToken, nil)
	if res.Status != http.StatusOK {
		t.Errorf("admin read: %d %s", res.Status, res.Error)
	}
	res = ts.call(t, http.MethodGet, "/v1/admin/appointments/"+appt.ID.String(), userToken, nil)
	if res.Status != http.StatusForbidden {
		t.Errorf("expected 403 for user on admin route, got %d", res.Status)
	}

	res = ts.call(t, http.MethodPost, "/v1/admin/reconcile", adminToken, nil)
	if res.Status != http.StatusOK {
		t.Errorf("reconcile: %d %s", res.Status, res.Error)
	}
}
