package ledger

import "fmt"

// Tally accumulates user record totals for comparison with an aggregate.
type Tally struct {
	Users            uint64 // Users is the number of user records added
	SumBandwidthMB   uint64 // SumBandwidthMB sums user bandwidth
	SumTokensEarned  uint64 // SumTokensEarned sums user tokens earned
	SumTokensClaimed uint64 // SumTokensClaimed sums user tokens claimed
}

// Add counts one user record. A record that claimed more than it earned
// fails with ErrInvariantViolation.
func (t *Tally) Add(u *UserRecord) error {
	if u.TokensClaimed > u.TokensEarned {
		return fmt.Errorf("%w: user %s claimed %d of %d earned", ErrInvariantViolation, u.Owner.Short(), u.TokensClaimed, u.TokensEarned)
	}

	var err error

	t.Users++

	if t.SumBandwidthMB, err = checkedAdd("sum.bandwidth_mb", t.SumBandwidthMB, u.TotalBandwidthMB); err != nil {
		return err
	}

	if t.SumTokensEarned, err = checkedAdd("sum.tokens_earned", t.SumTokensEarned, u.TokensEarned); err != nil {
		return err
	}

	if t.SumTokensClaimed, err = checkedAdd("sum.tokens_claimed", t.SumTokensClaimed, u.TokensClaimed); err != nil {
		return err
	}

	return nil
}

// Check compares the totals with g's counters.
func (t *Tally) Check(g *GlobalAggregate) error {
	if t.Users != g.TotalUsers {
		return fmt.Errorf("%w: %d user records, aggregate counts %d", ErrInvariantViolation, t.Users, g.TotalUsers)
	}

	if t.SumBandwidthMB != g.TotalBandwidthMB {
		return fmt.Errorf("%w: users sum to %d MB, aggregate holds %d", ErrInvariantViolation, t.SumBandwidthMB, g.TotalBandwidthMB)
	}

	if t.SumTokensEarned != g.TotalTokensMinted {
		return fmt.Errorf("%w: users earned %d tokens, aggregate minted %d", ErrInvariantViolation, t.SumTokensEarned, g.TotalTokensMinted)
	}

	return nil
}

// AuditReport summarizes a full scan of the ledger.
type AuditReport struct {
	Tally

	Aggregate GlobalAggregate // Aggregate is the aggregate at scan time
}

// Audit scans every user record and checks the conservation invariants
// against the aggregate. It blocks aggregate writers for the duration of
// the scan so the totals are compared at one point in time; claims may still
// run since they never touch the aggregate totals.
func (l *Ledger) Audit() (*AuditReport, error) {
	l.globalMu.Lock()
	defer l.globalMu.Unlock()

	g, err := l.store.loadGlobal()
	if err != nil {
		return nil, err
	}

	report := &AuditReport{Aggregate: *g}

	if err := l.store.eachUser(report.Add); err != nil {
		return nil, fmt.Errorf("scan users:\n%w", err)
	}

	if err := report.Check(g); err != nil {
		return report, err
	}

	return report, nil
}
