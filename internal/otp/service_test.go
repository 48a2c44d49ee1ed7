package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hackgods/medverify-booking/internal/apperr"
	"github.com/hackgods/medverify-booking/internal/notify"
)

type sentMessage struct {
	to      string
	channel notify.Channel
	msg     notify.Message
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *captureNotifier) Send(_ context.Context, to string, ch notify.Channel, msg notify.Message) (notify.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return notify.Receipt{}, n.err
	}
	n.sent = append(n.sent, sentMessage{to: to, channel: ch, msg: msg})
	return notify.Receipt{MessageID: "msg-1"}, nil
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	notifier *captureNotifier
	now      *time.Time
	codes    []string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		repo:     NewMemoryRepository(),
		notifier: &captureNotifier{},
		now:      &now,
	}
	counter := NewMemoryCounter()
	counter.now = func() time.Time { return *f.now }

	f.svc = NewService(f.repo, counter, f.notifier, opts, nil)
	f.svc.now = func() time.Time { return *f.now }

	seq := 0
	f.svc.genCode = func() (string, error) {
		seq++
		code := []string{"111111", "222222", "333333", "444444", "555555"}[seq%5]
		f.codes = append(f.codes, code)
		return code, nil
	}
	return f
}

func TestRequestCodeRateLimitedOnFourthRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.RequestCode(ctx, "+911234567890", TypePhone); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		*f.now = f.now.Add(5 * time.Second)
	}

	_, err := f.svc.RequestCode(ctx, "+91 12345 67890", TypePhone)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected RateLimited on the 4th request, got %v", err)
	}
	if len(f.notifier.sent) != 3 {
		t.Errorf("expected 3 deliveries, got %d", len(f.notifier.sent))
	}

	*f.now = f.now.Add(time.Minute)
	if _, err := f.svc.RequestCode(ctx, "+911234567890", TypePhone); err != nil {
		t.Errorf("expected the limit to decay, got %v", err)
	}
}

func TestRequestCodeKeepsOneActiveChallenge(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.svc.RequestCode(ctx, "A@B.com", TypeEmail); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := f.svc.RequestCode(ctx, "a@b.com", TypeEmail); err != nil {
		t.Fatalf("second request: %v", err)
	}

	active := f.repo.Active("a@b.com", *f.now)
	if len(active) != 1 {
		t.Fatalf("expected 1 active challenge, got %d", len(active))
	}
	if active[0].Code != f.codes[1] {
		t.Errorf("expected the newest code to be active")
	}
	if f.notifier.sent[0].channel != notify.ChannelEmail {
		t.Errorf("expected email channel, got %s", f.notifier.sent[0].channel)
	}

	if _, err := f.svc.VerifyCode(ctx, "a@b.com", f.codes[0], TypeEmail); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("superseded code must fail, got %v", err)
	}
}

func TestVerifyCodeIsSingleUse(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.svc.RequestCode(ctx, "+911234567890", TypePhone); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := f.codes[0]

	res, err := f.svc.VerifyCode(ctx, "911234567890", code, TypePhone)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Identifier != "+911234567890" {
		t.Errorf("unexpected identifier %s", res.Identifier)
	}

	if _, err := f.svc.VerifyCode(ctx, "+911234567890", code, TypePhone); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("replay must fail with InvalidOrExpired, got %v", err)
	}
}

func TestVerifyCodeConcurrentOnlyOneSucceeds(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.svc.RequestCode(ctx, "+911234567890", TypePhone); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := f.codes[0]

	var mu sync.Mutex
	successes := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.VerifyCode(ctx, "+911234567890", code, TypePhone); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one successful verification, got %d", successes)
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{TTL: 10 * time.Minute})
	ctx := context.Background()

	if _, err := f.svc.RequestCode(ctx, "+911234567890", TypePhone); err != nil {
		t.Fatalf("request: %v", err)
	}
	*f.now = f.now.Add(10 * time.Minute)

	if _, err := f.svc.VerifyCode(ctx, "+911234567890", f.codes[0], TypePhone); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("expected InvalidOrExpired after TTL, got %v", err)
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.svc.VerifyCode(ctx, "bogus", "123456", TypePhone); !errors.Is(err, apperr.ErrInvalidIdentifier) {
		t.Errorf("expected InvalidIdentifier, got %v", err)
	}
	if _, err := f.svc.VerifyCode(ctx, "+911234567890", "12ab56", TypePhone); !errors.Is(err, ErrInvalidOrExpired) {
		t.Errorf("expected InvalidOrExpired, got %v", err)
	}
}

func TestRequestCodeDeliveryFailureAborts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	f.notifier.err = errors.New("sms gateway timeout")
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, "+911234567890", TypePhone)
	if !errors.Is(err, apperr.ErrProvider) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if active := f.repo.Active("+911234567890", *f.now); len(active) != 0 {
		t.Errorf("undelivered challenge must not stay active, got %d", len(active))
	}
}

func TestTestIdentifiersUseFixedCodeWithoutDelivery(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{TestIdentifiers: []string{"+910000000001"}, TestCode: "424242"})
	ctx := context.Background()

	if _, err := f.svc.RequestCode(ctx, "+910000000001", TypePhone); err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("test identifiers must not be delivered, got %d", len(f.notifier.sent))
	}
	if _, err := f.svc.VerifyCode(ctx, "+910000000001", "424242", TypePhone); err != nil {
		t.Errorf("verify fixed code: %v", err)
	}
}

func TestSweepDeletesExpired(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, _ = f.svc.RequestCode(ctx, "+911234567890", TypePhone)
	*f.now = f.now.Add(11 * time.Minute)
	_, _ = f.svc.RequestCode(ctx, "a@b.com", TypeEmail)

	n, err := f.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted challenge, got %d", n)
	}
}

func TestGenerateCodeFormat(t *testing.T) {
	t.Parallel()
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generateCode: %v", err)
		}
		if !wellFormed(code) {
			t.Fatalf("malformed code %q", code)
		}
	}
}
