package ledger

import (
	"fmt"

	"BandwidthBazaar/internal/logger"
)

// Initialize creates the global aggregate with caller as authority.
// A second call fails with ErrAlreadyExists and leaves the first aggregate as is.
// marks are committed with the aggregate.
func (l *Ledger) Initialize(caller Identity, params Params, marks ...TxMark) (*GlobalAggregate, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	l.globalMu.Lock()
	defer l.globalMu.Unlock()

	exists, err := l.store.hasGlobal()
	if err != nil {
		return nil, fmt.Errorf("check global aggregate:\n%w", err)
	}

	if exists {
		return nil, fmt.Errorf("%w: global aggregate", ErrAlreadyExists)
	}

	g := &GlobalAggregate{
		Authority:      caller,
		PlatformFeeBPS: params.PlatformFeeBPS,
		TokensPerGB:    params.TokensPerGB,
		USDCPerToken:   params.USDCPerToken,
	}

	if err := l.store.commit(g, nil, nil, marks...); err != nil {
		return nil, err
	}

	logger.Info("ledger initialized",
		"authority", caller.Short(),
		"fee_bps", g.PlatformFeeBPS,
		"tokens_per_gb", g.TokensPerGB,
		"usdc_per_token", g.USDCPerToken,
	)

	return g, nil
}

// RegisterUser creates the caller's record and counts it in the aggregate.
// Fails with ErrAlreadyExists if the caller is registered, ErrNotFound if the
// ledger is not initialized.
func (l *Ledger) RegisterUser(caller Identity, marks ...TxMark) (*UserRecord, error) {
	key := UserKey(caller)

	unlock := l.lockUser(key)
	defer unlock()

	exists, err := l.store.hasUser(caller)
	if err != nil {
		return nil, fmt.Errorf("check user %s:\n%w", caller.Short(), err)
	}

	if exists {
		return nil, fmt.Errorf("%w: user %s", ErrAlreadyExists, caller.Short())
	}

	l.globalMu.Lock()
	defer l.globalMu.Unlock()

	g, err := l.store.loadGlobal()
	if err != nil {
		return nil, err
	}

	totalUsers, err := checkedAdd("total_users", g.TotalUsers, 1)
	if err != nil {
		return nil, err
	}

	u := &UserRecord{
		Owner:            caller,
		RegistrationTime: l.unixNow(),
		IsActive:         true,
		ReputationScore:  DefaultReputationScore,
	}

	g.TotalUsers = totalUsers

	if err := l.store.commit(g, key, u, marks...); err != nil {
		return nil, err
	}

	logger.Info("user registered", "owner", caller.Short(), "total_users", g.TotalUsers)

	return u, nil
}
