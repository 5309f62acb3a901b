package ledger

import (
	"fmt"

	"BandwidthBazaar/internal/logger"
)

// resolveActive loads the caller's record and checks ownership and activity,
// in that order. The caller must hold the user stripe.
func (l *Ledger) resolveActive(caller Identity) (*UserRecord, error) {
	u, err := l.store.loadUser(caller)
	if err != nil {
		return nil, err
	}

	// The key is derived from the caller, but ownership is still checked on
	// the record itself.
	if u.Owner != caller {
		return nil, fmt.Errorf("%w: record owner %s, caller %s", ErrUnauthorized, u.Owner.Short(), caller.Short())
	}

	if !u.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrUserInactive, caller.Short())
	}

	return u, nil
}

// Contribute records bandwidth reported by caller and mints the derived tokens.
// The user record and the aggregate are updated together or not at all.
func (l *Ledger) Contribute(caller Identity, bandwidthGB, bandwidthMB uint64, marks ...TxMark) (Contribution, error) {
	key := UserKey(caller)

	unlock := l.lockUser(key)
	defer unlock()

	u, err := l.resolveActive(caller)
	if err != nil {
		return Contribution{}, err
	}

	if bandwidthGB == 0 && bandwidthMB == 0 {
		return Contribution{}, fmt.Errorf("%w: zero volume reported", ErrInvalidBandwidth)
	}

	totalMB, err := normalizeMB(bandwidthGB, bandwidthMB)
	if err != nil {
		return Contribution{}, err
	}

	l.globalMu.Lock()
	defer l.globalMu.Unlock()

	g, err := l.store.loadGlobal()
	if err != nil {
		return Contribution{}, err
	}

	minted, err := tokensForMB(totalMB, g.TokensPerGB)
	if err != nil {
		return Contribution{}, err
	}

	// Compute every new counter before touching either record.
	userMB, err := checkedAdd("user.total_bandwidth_mb", u.TotalBandwidthMB, totalMB)
	if err != nil {
		return Contribution{}, err
	}

	userEarned, err := checkedAdd("user.tokens_earned", u.TokensEarned, minted)
	if err != nil {
		return Contribution{}, err
	}

	globalMB, err := checkedAdd("global.total_bandwidth_mb", g.TotalBandwidthMB, totalMB)
	if err != nil {
		return Contribution{}, err
	}

	globalMinted, err := checkedAdd("global.total_tokens_minted", g.TotalTokensMinted, minted)
	if err != nil {
		return Contribution{}, err
	}

	u.TotalBandwidthMB = userMB
	u.TokensEarned = userEarned
	u.LastContributionTime = l.unixNow()
	g.TotalBandwidthMB = globalMB
	g.TotalTokensMinted = globalMinted

	if err := l.store.commit(g, key, u, marks...); err != nil {
		return Contribution{}, err
	}

	logger.Debug("bandwidth contributed",
		"owner", caller.Short(),
		"bandwidth_mb", totalMB,
		"tokens_minted", minted,
	)

	return Contribution{BandwidthMB: totalMB, TokensMinted: minted}, nil
}

// Claim redeems amount tokens and returns the settlement owed to caller.
// Paying the settlement is up to the caller of this method.
func (l *Ledger) Claim(caller Identity, amount uint64, marks ...TxMark) (Redemption, error) {
	key := UserKey(caller)

	unlock := l.lockUser(key)
	defer unlock()

	u, err := l.resolveActive(caller)
	if err != nil {
		return Redemption{}, err
	}

	if amount == 0 {
		return Redemption{}, fmt.Errorf("%w: zero claim", ErrInvalidAmount)
	}

	// Rates never change after initialize, so claim reads the aggregate
	// without taking globalMu.
	g, err := l.store.loadGlobal()
	if err != nil {
		return Redemption{}, err
	}

	settlement, err := settlementFor(amount, g.USDCPerToken)
	if err != nil {
		return Redemption{}, err
	}

	if settlement == 0 {
		return Redemption{}, fmt.Errorf("%w: %d tokens settle to zero at rate %d", ErrInvalidAmount, amount, g.USDCPerToken)
	}

	claimed, err := checkedAdd("user.tokens_claimed", u.TokensClaimed, amount)
	if err != nil {
		return Redemption{}, err
	}

	if claimed > u.TokensEarned {
		return Redemption{}, fmt.Errorf("%w: requested %d, unclaimed %d", ErrInsufficientBalance, amount, u.Unclaimed())
	}

	u.TokensClaimed = claimed

	if err := l.store.commit(nil, key, u, marks...); err != nil {
		return Redemption{}, err
	}

	logger.Debug("rewards claimed",
		"owner", caller.Short(),
		"tokens", amount,
		"settlement", settlement,
	)

	return Redemption{TokensClaimed: amount, SettlementAmount: settlement}, nil
}
