package api

import (
	"time"

	"BandwidthBazaar/internal/ledger"
)

// AggregateView is the JSON form of the global aggregate.
type AggregateView struct {
	Initialized       bool   `json:"initialized"`
	Authority         string `json:"authority"`
	TotalBandwidthMB  uint64 `json:"totalBandwidthMb"`
	TotalUsers        uint64 `json:"totalUsers"`
	TotalTokensMinted uint64 `json:"totalTokensMinted"`
	PlatformFeeBPS    uint16 `json:"platformFeeBps"`
	TokensPerGB       uint64 `json:"tokensPerGb"`
	USDCPerToken      uint64 `json:"usdcPerToken"`
}

func newAggregateView(g *ledger.GlobalAggregate) AggregateView {
	return AggregateView{
		Initialized:       true,
		Authority:         g.Authority.String(),
		TotalBandwidthMB:  g.TotalBandwidthMB,
		TotalUsers:        g.TotalUsers,
		TotalTokensMinted: g.TotalTokensMinted,
		PlatformFeeBPS:    g.PlatformFeeBPS,
		TokensPerGB:       g.TokensPerGB,
		USDCPerToken:      g.USDCPerToken,
	}
}

// UserView is the JSON form of a user record.
type UserView struct {
	Owner                string     `json:"owner"`
	TotalBandwidthMB     uint64     `json:"totalBandwidthMb"`
	TokensEarned         uint64     `json:"tokensEarned"`
	TokensClaimed        uint64     `json:"tokensClaimed"`
	Unclaimed            uint64     `json:"unclaimed"`
	RegistrationTime     time.Time  `json:"registrationTime"`
	LastContributionTime *time.Time `json:"lastContributionTime,omitempty"`
	IsActive             bool       `json:"isActive"`
	ReputationScore      uint16     `json:"reputationScore"`
}

func newUserView(u *ledger.UserRecord) UserView {
	v := UserView{
		Owner:            u.Owner.String(),
		TotalBandwidthMB: u.TotalBandwidthMB,
		TokensEarned:     u.TokensEarned,
		TokensClaimed:    u.TokensClaimed,
		Unclaimed:        u.Unclaimed(),
		RegistrationTime: time.Unix(u.RegistrationTime, 0).UTC(),
		IsActive:         u.IsActive,
		ReputationScore:  u.ReputationScore,
	}

	// Zero means no contribution yet.
	if u.LastContributionTime != 0 {
		t := time.Unix(u.LastContributionTime, 0).UTC()
		v.LastContributionTime = &t
	}

	return v
}
