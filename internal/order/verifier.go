package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalyst/internal/broker"
	"catalyst/internal/logger"
	"catalyst/internal/trade"
)

// BracketIntegrityError means the broker accepted a bracket submission
// but does not hold the intended structure. It is fatal for the
// position: an entry fill without protective legs is worse than no fill,
// so the engine routes the symbol to emergency close.
type BracketIntegrityError struct {
	Symbol   string
	EntryID  string
	Problems []string
}

func (e *BracketIntegrityError) Error() string {
	return fmt.Sprintf("bracket integrity for %s (entry %s): %s",
		e.Symbol, e.EntryID, strings.Join(e.Problems, "; "))
}

// Submitted identifies the broker IDs of one transmitted bracket.
type Submitted struct {
	Symbol   string
	OCAGroup string
	EntryID  string
	StopID   string
	TargetID string
}

// Verifier re-queries the gateway after a settle delay and asserts the
// submitted bracket exists with correct linkage. Brokers have been
// observed to accept bracket parameters and silently register only a
// plain order; this check is the only way to notice.
type Verifier struct {
	gw     broker.Gateway
	settle time.Duration
}

func NewVerifier(gw broker.Gateway, settle time.Duration) *Verifier {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Verifier{gw: gw, settle: settle}
}

// Verify blocks for the settle delay, then checks all three legs. A
// gateway error during verification is returned as-is (unknown outcome,
// left for reconciliation); a confirmed structural defect returns
// *BracketIntegrityError.
func (v *Verifier) Verify(ctx context.Context, sub Submitted) error {
	select {
	case <-time.After(v.settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	var problems []string

	entry, err := v.gw.QueryOrder(ctx, sub.EntryID)
	switch {
	case errors.Is(err, broker.ErrOrderNotFound):
		problems = append(problems, "entry leg missing at broker")
	case err != nil:
		return fmt.Errorf("verify %s: %w", sub.Symbol, err)
	case entry.Role != trade.LegEntry:
		problems = append(problems, fmt.Sprintf("order %s has role %q, want entry", sub.EntryID, entry.Role))
	}

	check := func(id string, role trade.LegRole) error {
		rec, err := v.gw.QueryOrder(ctx, id)
		if errors.Is(err, broker.ErrOrderNotFound) {
			problems = append(problems, fmt.Sprintf("%s leg missing at broker", role))
			return nil
		}
		if err != nil {
			// Transport failure, not a confirmed structural defect. The
			// outcome is unknown; leave it for the reconciliation pass.
			return fmt.Errorf("verify %s %s leg: %w", sub.Symbol, role, err)
		}
		if rec.ParentID != sub.EntryID {
			problems = append(problems, fmt.Sprintf("%s leg parent %q, want %q", role, rec.ParentID, sub.EntryID))
		}
		if rec.OCAGroup != sub.OCAGroup {
			problems = append(problems, fmt.Sprintf("%s leg oca %q, want %q", role, rec.OCAGroup, sub.OCAGroup))
		}
		if rec.Status.Terminal() && rec.Status != trade.StatusFilled {
			problems = append(problems, fmt.Sprintf("%s leg dead with status %s", role, rec.Status))
		}
		return nil
	}
	if err := check(sub.StopID, trade.LegStop); err != nil {
		return err
	}
	if err := check(sub.TargetID, trade.LegTarget); err != nil {
		return err
	}

	if len(problems) > 0 {
		logger.Errorf("bracket verification failed symbol=%s entry=%s problems=%d", sub.Symbol, sub.EntryID, len(problems))
		return &BracketIntegrityError{Symbol: sub.Symbol, EntryID: sub.EntryID, Problems: problems}
	}
	logger.Debugf("bracket verified symbol=%s entry=%s oca=%s", sub.Symbol, sub.EntryID, sub.OCAGroup)
	return nil
}
