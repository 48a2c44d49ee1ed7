// Command simulate drives the booking flow against a running api-server in
// auth test mode: OTP login, draft saves, finalize, order and payment
// verification, and reports per-operation latency.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/medverify-booking/internal/logger"
	"github.com/hackgods/medverify-booking/internal/payment"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Identifiers []string
	TestCode    string
	KeySecret   string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64 // 4xx
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status >= 400 && status < 500:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

var operations = []string{"otp_request", "otp_verify", "draft_save", "finalize", "order_create", "payment_verify"}

type Simulator struct {
	cfg     SimConfig
	client  *http.Client
	log     *zap.Logger
	metrics map[string]*OperationMetrics
	flows   int64
}

func main() {
	lg, err := logger.New(logger.ConfigFromEnv())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	cfg := loadConfig()
	if len(cfg.Identifiers) == 0 {
		lg.Fatal("SIM_IDENTIFIERS or AUTH_TEST_IDENTIFIERS must list test-mode phone numbers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	sim := &Simulator{
		cfg:     cfg,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     lg,
		metrics: make(map[string]*OperationMetrics, len(operations)),
	}
	for _, op := range operations {
		sim.metrics[op] = &OperationMetrics{}
	}

	lg.Info("simulation starting",
		zap.String("base_url", cfg.APIBaseURL),
		zap.Int("workers", len(cfg.Identifiers)),
		zap.Duration("duration", cfg.Duration))

	var wg sync.WaitGroup
	for i, id := range cfg.Identifiers {
		wg.Add(1)
		go func(worker int, identifier string) {
			defer wg.Done()
			sim.worker(ctx, worker, identifier)
		}(i, id)
	}
	wg.Wait()

	sim.report()
}

func loadConfig() SimConfig {
	_ = godotenv.Load()

	ids := os.Getenv("SIM_IDENTIFIERS")
	if ids == "" {
		ids = os.Getenv("AUTH_TEST_IDENTIFIERS")
	}
	var identifiers []string
	for _, p := range strings.Split(ids, ",") {
		if p = strings.TrimSpace(p); p != "" {
			identifiers = append(identifiers, p)
		}
	}

	duration := time.Minute
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			duration = time.Duration(n) * time.Second
		} else if d, err := time.ParseDuration(v); err == nil {
			duration = d
		}
	}

	base := os.Getenv("SIM_API_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	code := os.Getenv("SIM_TEST_CODE")
	if code == "" {
		code = "000000"
	}

	return SimConfig{
		APIBaseURL:  strings.TrimRight(base, "/"),
		Duration:    duration,
		Identifiers: identifiers,
		TestCode:    code,
		KeySecret:   os.Getenv("RAZORPAY_KEY_SECRET"),
	}
}

// worker logs in once and then books appointments back to back until ctx ends.
func (s *Simulator) worker(ctx context.Context, worker int, identifier string) {
	faker := gofakeit.New(uint64(time.Now().UnixNano()) + uint64(worker))

	var token string
	for token == "" {
		if ctx.Err() != nil {
			return
		}
		token = s.login(ctx, identifier)
		if token == "" {
			// the OTP rate limit window is a minute
			select {
			case <-ctx.Done():
				return
			case <-time.After(20 * time.Second):
			}
		}
	}

	for ctx.Err() == nil {
		if s.bookOnce(ctx, token, identifier, faker) {
			atomic.AddInt64(&s.flows, 1)
		}
	}
}

func (s *Simulator) login(ctx context.Context, identifier string) string {
	body := map[string]string{"identifier": identifier, "type": "phone"}
	if status, _ := s.call(ctx, "otp_request", http.MethodPost, "/v1/auth/otp/request", "", body); status != http.StatusOK {
		return ""
	}

	body["code"] = s.cfg.TestCode
	status, data := s.call(ctx, "otp_verify", http.MethodPost, "/v1/auth/otp/verify", "", body)
	if status != http.StatusOK {
		return ""
	}
	var sess struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(data, &sess)
	return sess.Token
}

func (s *Simulator) bookOnce(ctx context.Context, token, phone string, f *gofakeit.Faker) bool {
	passport := fmt.Sprintf("P%07d", f.Number(0, 9999999))
	form := map[string]string{
		"firstName": f.FirstName(), "lastName": f.LastName(), "email": f.Email(), "phone": phone,
		"dateOfBirth": f.Date().Format("2006-01-02"), "gender": f.RandomString([]string{"male", "female"}),
		"nationality": f.Country(), "maritalStatus": f.RandomString([]string{"single", "married"}),
		"passportNumber": passport, "confirmPassportNumber": passport,
		"passportIssueDate": "2020-01-01", "passportIssuePlace": f.City(), "passportExpiryDate": "2030-01-01",
		"visaType": "work", "position": f.JobTitle(), "country": f.Country(), "city": f.City(),
		"appointmentType": f.RandomString([]string{"standard", "premium", "express"}),
	}

	partial := map[string]string{"firstName": form["firstName"], "lastName": form["lastName"]}
	if status, _ := s.call(ctx, "draft_save", http.MethodPut, "/v1/appointments/draft", token, partial); status != http.StatusOK {
		return false
	}

	status, data := s.call(ctx, "finalize", http.MethodPost, "/v1/appointments/finalize", token, form)
	if status != http.StatusOK {
		return false
	}
	var appt struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &appt)

	status, data = s.call(ctx, "order_create", http.MethodPost, "/v1/payments/orders", token, map[string]string{"appointmentId": appt.ID})
	if status != http.StatusCreated {
		return false
	}
	var order struct {
		OrderID string `json:"orderId"`
	}
	_ = json.Unmarshal(data, &order)

	paymentID := "pay_sim_" + f.LetterN(14)
	status, _ = s.call(ctx, "payment_verify", http.MethodPost, "/v1/payments/verify", token, map[string]string{
		"orderId":       order.OrderID,
		"paymentId":     paymentID,
		"signature":     payment.Sign(s.cfg.KeySecret, order.OrderID, paymentID),
		"appointmentId": appt.ID,
	})
	return status == http.StatusOK
}

func (s *Simulator) call(ctx context.Context, op, method, path, token string, body any) (int, json.RawMessage) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, &buf)
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics[op].Record(time.Since(start), 0)
			s.log.Debug("request failed", zap.String("op", op), zap.Error(err))
		}
		return 0, nil
	}
	defer resp.Body.Close()

	var env struct {
		Data      json.RawMessage `json:"data"`
		ErrorKind string          `json:"errorKind"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&env)
	s.metrics[op].Record(time.Since(start), resp.StatusCode)

	if resp.StatusCode >= 400 {
		s.log.Debug("request rejected", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.String("error_kind", env.ErrorKind))
	}
	return resp.StatusCode, env.Data
}

func (s *Simulator) report() {
	s.log.Info("simulation finished", zap.Int64("completed_bookings", atomic.LoadInt64(&s.flows)))
	for _, op := range operations {
		m := s.metrics[op]
		avg, p50, p95, max := m.Stats()
		s.log.Info("operation stats",
			zap.String("op", op),
			zap.Int64("total", atomic.LoadInt64(&m.Total)),
			zap.Int64("success", atomic.LoadInt64(&m.Success)),
			zap.Int64("rejected", atomic.LoadInt64(&m.Rejected)),
			zap.Int64("error", atomic.LoadInt64(&m.Error)),
			zap.Duration("avg", avg),
			zap.Duration("p50", p50),
			zap.Duration("p95", p95),
			zap.Duration("max", max))
	}
}
