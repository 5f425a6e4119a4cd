package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/ledger"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/cooldown"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

var start = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeDelivery struct {
	mu   sync.Mutex
	sent []entity.Challenge
	err  error
}

func (f *fakeDelivery) Send(_ context.Context, c entity.Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return f.err
}

func (f *fakeDelivery) last() entity.Challenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeMessaging struct {
	requested []ChallengeRequestedEvent
	verified  []ChallengeVerifiedEvent
	err       error
}

func (f *fakeMessaging) PublishChallengeRequested(_ context.Context, msg ChallengeRequestedEvent) error {
	f.requested = append(f.requested, msg)
	return f.err
}

func (f *fakeMessaging) PublishChallengeVerified(_ context.Context, msg ChallengeVerifiedEvent) error {
	f.verified = append(f.verified, msg)
	return f.err
}

type fixture struct {
	uc       *Usecase
	clock    *clock.Fixed
	ledger   *ledger.Ledger
	delivery *fakeDelivery
	mq       *fakeMessaging
	jwt      *jwt.Symmetric
}

func newFixture(t *testing.T, yaml string) *fixture {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatal(err)
	}

	clk := clock.NewFixed(start)
	l, err := ledger.New(ledger.Config{
		Store:     store.NewMemory(clk, time.Hour),
		Clock:     clk,
		Generator: ledger.GeneratorFunc(func() (string, error) { return "482913", nil }),
	})
	if err != nil {
		t.Fatal(err)
	}

	j, err := jwt.NewHS512(jwt.Config{
		Secret:    []byte(strings.Repeat("k", 64)),
		Issuer:    "otpgate",
		Audiences: []string{"otpgate-clients"},
		TTL:       10 * time.Minute,
		Clock:     clk,
		UUID:      uid.NewUUID(),
	})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{clock: clk, ledger: l, delivery: &fakeDelivery{}, mq: &fakeMessaging{}, jwt: j}
	f.uc = New(Dependency{
		Ledger:        l,
		RepoDelivery:  f.delivery,
		RepoMessaging: f.mq,
		Cooldown:      cooldown.NewMemory(clk),
		Validator:     v,
		Config:        cfg,
		Clock:         clk,
		JWT:           j,
		Instrument:    instrument.NewNoop(),
	})

	return f
}

func assertCode(t *testing.T, err error, want goerror.Code) {
	t.Helper()

	var gerr *goerror.Error
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v, want goerror", err)
	}
	if gerr.Code() != want {
		t.Fatalf("code = %v, want %v (%v)", gerr.Code(), want, err)
	}
}

func TestRequestChallengeSync(t *testing.T) {
	f := newFixture(t, "otp: {}")

	if err := f.uc.RequestChallenge(context.Background(), RequestChallengeInput{Identity: "  Ada@Example.COM "}); err != nil {
		t.Fatal(err)
	}

	c := f.delivery.last()
	if c.Identity != "ada@example.com" || c.Code != "482913" || c.Channel != entity.ChannelEmail {
		t.Fatalf("delivered %+v", c)
	}
	if len(f.mq.requested) != 0 {
		t.Fatal("sync mode published an event")
	}
}

func TestRequestChallengePhone(t *testing.T) {
	f := newFixture(t, "otp: {}")

	if err := f.uc.RequestChallenge(context.Background(), RequestChallengeInput{Identity: "+91 98123-45678"}); err != nil {
		t.Fatal(err)
	}
	if c := f.delivery.last(); c.Identity != "+919812345678" || c.Channel != entity.ChannelSMS {
		t.Fatalf("delivered %+v", c)
	}
}

func TestRequestChallengeInvalid(t *testing.T) {
	f := newFixture(t, "otp: {}")

	err := f.uc.RequestChallenge(context.Background(), RequestChallengeInput{Identity: "   "})
	assertCode(t, err, goerror.CodeInvalidFormat)
	if err.(*goerror.Error).Msg() != "Email required" {
		t.Fatalf("msg = %q", err.(*goerror.Error).Msg())
	}

	err = f.uc.RequestChallenge(context.Background(), RequestChallengeInput{Identity: "not-an-address"})
	assertCode(t, err, goerror.CodeInvalidInput)

	if len(f.delivery.sent) != 0 {
		t.Fatal("invalid identity was delivered")
	}
}

func TestRequestChallengeAsync(t *testing.T) {
	f := newFixture(t, "otp:\n  delivery:\n    mode: async\n")

	if err := f.uc.RequestChallenge(context.Background(), RequestChallengeInput{Identity: "a@b.co"}); err != nil {
		t.Fatal(err)
	}
	if len(f.delivery.sent) != 0 {
		t.Fatal("async mode delivered inline")
	}
	if len(f.mq.requested) != 1 || f.mq.requested[0].Code != "482913" || f.mq.requested[0].Channel != "email" {
		t.Fatalf("requested events = %+v", f.mq.requested)
	}
}

func TestRequestChallengeDeliveryFailure(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantKept bool
	}{
		{"keeps challenge", "otp: {}", true},
		{"rolls back", "otp:\n  rollback_on_delivery_failure: true\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.yaml)
			f.delivery.err = errors.New("smtp down")

			err := f.uc.RequestChallenge(context.Background(), RequestChallengeInput{Identity: "a@b.co"})
			assertCode(t, err, goerror.CodeInternal)
			if msg := err.(*goerror.Error).Msg(); msg != "Failed to send OTP" {
				t.Fatalf("msg = %q", msg)
			}

			o, _ := f.ledger.Verify(context.Background(), "a@b.co", "482913")
			if got := o == entity.OutcomeVerified; got != tt.wantKept {
				t.Fatalf("challenge kept = %v, want %v", got, tt.wantKept)
			}
		})
	}
}

func TestRequestChallengeCooldown(t *testing.T) {
	f := newFixture(t, "otp:\n  cooldown_seconds: 30\n")
	ctx := context.Background()

	if err := f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "a@b.co"}); err != nil {
		t.Fatal(err)
	}
	assertCode(t, f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "a@b.co"}), goerror.CodeTooManyRequest)

	if err := f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "c@d.co"}); err != nil {
		t.Fatalf("other identity throttled: %v", err)
	}

	f.clock.Advance(31 * time.Second)
	if err := f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "a@b.co"}); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestRequestChallengeCooldownReleasedOnFailure(t *testing.T) {
	f := newFixture(t, "otp:\n  cooldown_seconds: 30\n")
	ctx := context.Background()

	f.delivery.err = errors.New("down")
	_ = f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "a@b.co"})

	f.delivery.err = nil
	if err := f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "a@b.co"}); err != nil {
		t.Fatalf("retry after failed delivery throttled: %v", err)
	}
}

func TestVerifyChallengeOutcomes(t *testing.T) {
	f := newFixture(t, "otp: {}")
	ctx := context.Background()

	out, err := f.uc.VerifyChallenge(ctx, VerifyChallengeInput{Identity: "a@b.co", Code: "482913"})
	if err != nil || out.Outcome != entity.OutcomeNoChallenge {
		t.Fatalf("before request = %+v, %v", out, err)
	}

	_ = f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "a@b.co"})

	out, _ = f.uc.VerifyChallenge(ctx, VerifyChallengeInput{Identity: "a@b.co", Code: "000000"})
	if out.Outcome != entity.OutcomeMismatch {
		t.Fatalf("wrong code = %v", out.Outcome)
	}

	out, _ = f.uc.VerifyChallenge(ctx, VerifyChallengeInput{Identity: " A@B.co ", Code: "482913"})
	if out.Outcome != entity.OutcomeVerified || out.Token != "" {
		t.Fatalf("correct code = %+v", out)
	}
	if len(f.mq.verified) != 0 {
		t.Fatal("verified event published while disabled")
	}

	_ = f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "a@b.co"})
	f.clock.Advance(5*time.Minute + time.Second)
	out, _ = f.uc.VerifyChallenge(ctx, VerifyChallengeInput{Identity: "a@b.co", Code: "482913"})
	if out.Outcome != entity.OutcomeExpired {
		t.Fatalf("late = %v", out.Outcome)
	}
}

func TestVerifyChallengeTokenAndEvent(t *testing.T) {
	f := newFixture(t, "otp:\n  token:\n    enabled: true\n  events:\n    enabled: true\n")
	ctx := context.Background()

	_ = f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "+919812345678"})
	out, err := f.uc.VerifyChallenge(ctx, VerifyChallengeInput{Identity: "+919812345678", Code: "482913"})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := f.jwt.Verify(out.Token)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.Subject != "+919812345678" || claims.Channel != "sms" || claims.ChallengeID == "" {
		t.Fatalf("claims = %+v", claims)
	}

	if len(f.mq.verified) != 1 || f.mq.verified[0].ChallengeID != claims.ChallengeID || !f.mq.verified[0].VerifiedAt.Equal(start) {
		t.Fatalf("verified events = %+v", f.mq.verified)
	}
}

func TestIntrospectToken(t *testing.T) {
	f := newFixture(t, "otp:\n  token:\n    enabled: true\n")
	ctx := context.Background()

	_ = f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "a@b.co"})
	verified, err := f.uc.VerifyChallenge(ctx, VerifyChallengeInput{Identity: "a@b.co", Code: "482913"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := f.uc.IntrospectToken(ctx, IntrospectTokenInput{Token: " " + verified.Token + " "})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Active || out.Identity != "a@b.co" || out.Channel != "email" || out.ChallengeID == "" ||
		!out.ExpiresAt.Equal(start.Add(10*time.Minute)) {
		t.Fatalf("IntrospectToken() = %+v", out)
	}

	f.clock.Advance(11 * time.Minute)
	out, err = f.uc.IntrospectToken(ctx, IntrospectTokenInput{Token: verified.Token})
	if err != nil || out.Active {
		t.Fatalf("IntrospectToken() after expiry = %+v, %v", out, err)
	}

	out, err = f.uc.IntrospectToken(ctx, IntrospectTokenInput{Token: "not.a.token"})
	if err != nil || out.Active {
		t.Fatalf("IntrospectToken() garbage = %+v, %v", out, err)
	}

	_, err = f.uc.IntrospectToken(ctx, IntrospectTokenInput{Token: "  "})
	assertCode(t, err, goerror.CodeInvalidInput)
}

func TestIntrospectTokenDisabled(t *testing.T) {
	f := newFixture(t, "otp: {}")

	_, err := f.uc.IntrospectToken(context.Background(), IntrospectTokenInput{Token: "x"})
	assertCode(t, err, goerror.CodeNotFound)
}

func TestVerifyChallengeEventFailureIgnored(t *testing.T) {
	f := newFixture(t, "otp:\n  events:\n    enabled: true\n")
	f.mq.err = errors.New("broker down")
	ctx := context.Background()

	_ = f.uc.RequestChallenge(ctx, RequestChallengeInput{Identity: "a@b.co"})
	out, err := f.uc.VerifyChallenge(ctx, VerifyChallengeInput{Identity: "a@b.co", Code: "482913"})
	if err != nil || out.Outcome != entity.OutcomeVerified {
		t.Fatalf("VerifyChallenge() = %+v, %v", out, err)
	}
}

func TestConsumeChallengeRequested(t *testing.T) {
	f := newFixture(t, "otp: {}")
	ctx := context.Background()

	in := ConsumeChallengeRequestedInput{ChallengeID: "1", Identity: "a@b.co", Channel: "email", Code: "482913", ExpiresAt: start.Add(time.Minute)}
	if err := f.uc.ConsumeChallengeRequested(ctx, in); err != nil {
		t.Fatal(err)
	}
	if c := f.delivery.last(); c.Code != "482913" || c.Channel != entity.ChannelEmail {
		t.Fatalf("delivered %+v", c)
	}

	in.ExpiresAt = start.Add(-time.Second)
	if err := f.uc.ConsumeChallengeRequested(ctx, in); err != nil {
		t.Fatal(err)
	}
	if len(f.delivery.sent) != 1 {
		t.Fatal("expired challenge delivered")
	}

	f.delivery.err = errors.New("down")
	in.ExpiresAt = start.Add(time.Minute)
	if err := f.uc.ConsumeChallengeRequested(ctx, in); err == nil {
		t.Fatal("delivery error swallowed")
	}

	if err := f.uc.ConsumeChallengeRequested(ctx, ConsumeChallengeRequestedInput{}); err != nil {
		t.Fatalf("malformed = %v, want nil", err)
	}
}

func TestNormalizeIdentity(t *testing.T) {
	tests := map[string]string{
		" Ada@Example.com ":  "ada@example.com",
		"+1 (555) 010-2030": "+15550102030",
		"+44.20.7946.0958":  "+442079460958",
		"":                  "",
	}
	for in, want := range tests {
		if got := normalizeIdentity(in); got != want {
			t.Errorf("normalizeIdentity(%q) = %q, want %q", in, got, want)
		}
	}
}
