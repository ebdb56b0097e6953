package engine

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"tokenrelay/internal/chains"
	"tokenrelay/internal/models"
)

func TestCooldownFor(t *testing.T) {
	cases := []struct {
		count int
		want  time.Duration
	}{
		{0, 0},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{3, 24 * time.Hour},
		{5, 24 * time.Hour},
	}
	for _, c := range cases {
		if got := cooldownFor(c.count); got != c.want {
			t.Errorf("cooldownFor(%d) = %s, want %s", c.count, got, c.want)
		}
	}
}

type funderFixture struct {
	funder  *Funder
	backend *fakeBackend
	chain   *chains.Chain
	clock   time.Time
}

func newFunderFixture(t *testing.T) *funderFixture {
	t.Helper()

	ch, ok := testRegistry(t).Get("testchain")
	if !ok {
		t.Fatal("testchain missing from registry")
	}

	fx := &funderFixture{
		backend: newFakeBackend(),
		chain:   ch,
		clock:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.funder = NewFunder(NewMemoryFundingStore(), time.Second, zap.NewNop())
	fx.funder.now = func() time.Time { return fx.clock }
	return fx
}

func (fx *funderFixture) fund(t *testing.T) error {
	t.Helper()
	_, err := fx.funder.Fund(context.Background(), fx.chain, fx.backend, userAddr, "allowance too low")
	return err
}

func declineReason(t *testing.T, err error) string {
	t.Helper()
	var relayErr *models.RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("expected a relay error, got %v", err)
	}
	if relayErr.Kind != models.ErrorKindInsufficientAllowance {
		t.Fatalf("expected INSUFFICIENT_ALLOWANCE, got %s", relayErr.Kind)
	}
	return relayErr.Detail
}

func TestFundEscalatingCooldowns(t *testing.T) {
	fx := newFunderFixture(t)

	// First funding goes through immediately
	if err := fx.fund(t); err != nil {
		t.Fatalf("first funding failed: %v", err)
	}
	if fx.backend.sentCount() != 1 {
		t.Fatalf("expected 1 transaction, got %d", fx.backend.sentCount())
	}
	sponsored := fx.backend.nativeOf(userAddr)
	if sponsored.Cmp(big.NewInt(2_000_000_000_000_000)) != 0 {
		t.Errorf("unexpected sponsorship amount: %s", sponsored)
	}

	// The top-up alone keeps the user below the sponsor threshold only
	// after they spend it
	fx.backend.setNative(userAddr, big.NewInt(0))

	// Second attempt inside the one hour window is declined
	fx.clock = fx.clock.Add(30 * time.Minute)
	detail := declineReason(t, fx.fund(t))
	if !strings.Contains(detail, "available again in 30m0s") {
		t.Errorf("unexpected decline detail: %s", detail)
	}

	// After the hour the second funding goes through
	fx.clock = fx.clock.Add(31 * time.Minute)
	if err := fx.fund(t); err != nil {
		t.Fatalf("second funding failed: %v", err)
	}
	fx.backend.setNative(userAddr, big.NewInt(0))

	// Now the wait is two hours
	fx.clock = fx.clock.Add(90 * time.Minute)
	detail = declineReason(t, fx.fund(t))
	if !strings.Contains(detail, "available again in") {
		t.Errorf("unexpected decline detail: %s", detail)
	}

	fx.clock = fx.clock.Add(31 * time.Minute)
	if err := fx.fund(t); err != nil {
		t.Fatalf("third funding failed: %v", err)
	}
	fx.backend.setNative(userAddr, big.NewInt(0))

	// And a full day after the third
	fx.clock = fx.clock.Add(23 * time.Hour)
	if err := fx.fund(t); err == nil {
		t.Fatal("expected decline inside the 24h window")
	}

	fx.clock = fx.clock.Add(2 * time.Hour)
	if err := fx.fund(t); err != nil {
		t.Fatalf("fourth funding failed: %v", err)
	}
	if fx.backend.sentCount() != 4 {
		t.Errorf("expected 4 transactions, got %d", fx.backend.sentCount())
	}
}

func TestFundDeclinesWhenUserHasGas(t *testing.T) {
	fx := newFunderFixture(t)
	fx.backend.setNative(userAddr, eth(1))

	detail := declineReason(t, fx.fund(t))
	if detail != "allowance too low" {
		t.Errorf("unexpected detail: %s", detail)
	}
	if fx.backend.sentCount() != 0 {
		t.Errorf("expected no transactions, got %d", fx.backend.sentCount())
	}
}

func TestFundDeclinesWhenRelayerCannotAfford(t *testing.T) {
	fx := newFunderFixture(t)
	// Below the sponsor amount plus the gas for sending it
	fx.backend.setNative(relayerAddr, big.NewInt(2_000_000_000_000_000))

	detail := declineReason(t, fx.fund(t))
	if detail != "allowance too low" {
		t.Errorf("unexpected detail: %s", detail)
	}
	if fx.backend.sentCount() != 0 {
		t.Errorf("expected no transactions, got %d", fx.backend.sentCount())
	}
}

func TestFundDeclinesWhenSendFails(t *testing.T) {
	fx := newFunderFixture(t)
	fx.backend.sendErr = errors.New("connection refused")

	detail := declineReason(t, fx.fund(t))
	if detail != "allowance too low" {
		t.Errorf("unexpected detail: %s", detail)
	}

	// A failed broadcast does not burn the user's funding slot
	if err := fx.fund(t); err != nil {
		t.Fatalf("retry after send failure was declined: %v", err)
	}
}

func TestFundDisabledWithoutSponsorAmount(t *testing.T) {
	fx := newFunderFixture(t)
	fx.chain.SponsorAmount = big.NewInt(0)

	detail := declineReason(t, fx.fund(t))
	if detail != "allowance too low" {
		t.Errorf("unexpected detail: %s", detail)
	}
	if fx.backend.sentCount() != 0 {
		t.Errorf("expected no transactions, got %d", fx.backend.sentCount())
	}
}
