package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/medverify-booking/internal/apperr"
	"github.com/hackgods/medverify-booking/internal/notify"
)

var (
	ErrRateLimited      = apperr.New(apperr.KindRateLimited, "too many code requests, try again shortly")
	ErrInvalidOrExpired = apperr.New(apperr.KindInvalidOrExpired, "invalid or expired code")
)

const codeDigits = 6

type Options struct {
	TTL                time.Duration
	RateLimit          int
	RateWindow         time.Duration
	DefaultCountryCode string

	// TestIdentifiers receive TestCode instead of a random code and are not
	// sent through the notifier.
	TestIdentifiers []string
	TestCode        string
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Minute
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 3
	}
	if o.RateWindow <= 0 {
		o.RateWindow = time.Minute
	}
	if o.DefaultCountryCode == "" {
		o.DefaultCountryCode = "91"
	}
	if o.TestCode == "" {
		o.TestCode = "000000"
	}
	return o
}

type Service struct {
	repo     Repository
	counter  CounterStore
	notifier notify.Notifier
	opts     Options
	testIDs  map[string]struct{}
	log      *zap.Logger
	now      func() time.Time
	genCode  func() (string, error)
}

func NewService(repo Repository, counter CounterStore, notifier notify.Notifier, opts Options, log *zap.Logger) *Service {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	testIDs := make(map[string]struct{}, len(opts.TestIdentifiers))
	for _, id := range opts.TestIdentifiers {
		testIDs[id] = struct{}{}
	}
	return &Service{
		repo:     repo,
		counter:  counter,
		notifier: notifier,
		opts:     opts,
		testIDs:  testIDs,
		log:      log,
		now:      time.Now,
		genCode:  generateCode,
	}
}

// RequestResult describes an issued challenge. The code itself is never
// returned to the caller.
type RequestResult struct {
	Identifier string
	Type       Type
	ExpiresAt  time.Time
	MessageID  string
}

// RequestCode issues a fresh code for identifier, replacing any active one.
func (s *Service) RequestCode(ctx context.Context, identifier string, t Type) (*RequestResult, error) {
	normalized, err := Normalize(identifier, t, s.opts.DefaultCountryCode)
	if err != nil {
		return nil, err
	}

	allowed, err := s.counter.Hit(ctx, normalized, s.opts.RateLimit, s.opts.RateWindow)
	if err != nil {
		return nil, apperr.Persistence(err, "rate limit check")
	}
	if !allowed {
		s.log.Info("otp request rate limited", zap.String("identifier", normalized))
		return nil, ErrRateLimited
	}

	_, testMode := s.testIDs[normalized]
	code := s.opts.TestCode
	if !testMode {
		if code, err = s.genCode(); err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
	}

	now := s.now()
	ch := &Challenge{
		ID:         uuid.New(),
		Identifier: normalized,
		Code:       code,
		Type:       t,
		ExpiresAt:  now.Add(s.opts.TTL),
	}
	if err := s.repo.Replace(ctx, ch, now); err != nil {
		return nil, apperr.Persistence(err, "store challenge")
	}

	res := &RequestResult{Identifier: normalized, Type: t, ExpiresAt: ch.ExpiresAt}
	if testMode {
		s.log.Info("otp issued for test identifier", zap.String("identifier", normalized))
		return res, nil
	}

	rcpt, err := s.notifier.Send(ctx, normalized, channelFor(t), notify.OTPMessage(code, s.opts.TTL))
	if err != nil {
		// the user never received this code
		if invErr := s.repo.Invalidate(context.WithoutCancel(ctx), ch.ID, s.now()); invErr != nil {
			s.log.Error("invalidate undelivered challenge", zap.String("identifier", normalized), zap.Error(invErr))
		}
		s.log.Warn("otp delivery failed", zap.String("identifier", normalized), zap.Error(err))
		return nil, apperr.Wrap(apperr.KindProvider, err, "could not deliver verification code")
	}

	res.MessageID = rcpt.MessageID
	return res, nil
}

// VerifyResult is the normalized identifier a code was verified for.
type VerifyResult struct {
	Identifier string
	Type       Type
}

// VerifyCode consumes a matching active challenge. A code verifies at most once.
func (s *Service) VerifyCode(ctx context.Context, identifier, code string, t Type) (*VerifyResult, error) {
	normalized, err := Normalize(identifier, t, s.opts.DefaultCountryCode)
	if err != nil {
		return nil, err
	}
	if !wellFormed(code) {
		return nil, ErrInvalidOrExpired
	}

	ok, err := s.repo.Consume(ctx, normalized, t, code, s.now())
	if err != nil {
		return nil, apperr.Persistence(err, "consume challenge")
	}
	if !ok {
		return nil, ErrInvalidOrExpired
	}

	return &VerifyResult{Identifier: normalized, Type: t}, nil
}

// Sweep deletes expired challenges and idle rate-limit keys.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, apperr.Persistence(err, "delete expired challenges")
	}
	if p, ok := s.counter.(interface{ Prune(time.Duration) int }); ok {
		p.Prune(s.opts.RateWindow)
	}
	return n, nil
}

func channelFor(t Type) notify.Channel {
	if t == TypeEmail {
		return notify.ChannelEmail
	}
	return notify.ChannelSMS
}

func wellFormed(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// generateCode returns a uniformly random code in [000000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
