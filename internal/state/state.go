package state

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"BandwidthBazaar/internal/genesis"
	"BandwidthBazaar/internal/history"
	"BandwidthBazaar/internal/ledger"
	"BandwidthBazaar/internal/logger"
	"BandwidthBazaar/internal/metrics"
	"BandwidthBazaar/internal/types"
)

var (
	// ErrMalformedTx is returned when transaction bytes or arguments cannot be decoded.
	ErrMalformedTx = errors.New("malformed transaction")

	// ErrUnknownInstruction is returned for an instruction name with no handler.
	ErrUnknownInstruction = errors.New("unknown instruction")

	// ErrDuplicateTx is returned for a transaction hash already processed,
	// including one processed before a restart.
	ErrDuplicateTx = errors.New("transaction already processed")
)

// Journal receives one entry per applied operation.
type Journal interface {
	Record(e history.Entry) error
}

// Receipt describes the effect of an applied transaction.
type Receipt struct {
	TxHash           string    `json:"txHash"`
	Instruction      string    `json:"instruction"`
	Owner            string    `json:"owner"`
	BandwidthMB      uint64    `json:"bandwidthMb,omitempty"`
	TokensMinted     uint64    `json:"tokensMinted,omitempty"`
	TokensClaimed    uint64    `json:"tokensClaimed,omitempty"`
	SettlementAmount uint64    `json:"settlementAmount,omitempty"`
	Time             time.Time `json:"time"`
}

// Option configures a State.
type Option func(*State)

// WithJournal records every applied operation in j.
func WithJournal(j Journal) Option {
	return func(s *State) {
		s.journal = j
	}
}

// WithClock overrides the time source used for receipts.
func WithClock(now func() time.Time) Option {
	return func(s *State) {
		s.now = now
	}
}

// State decodes signed transactions and applies them to the ledger.
// Authentication and nonce checks happen before Execute; the sender
// field is trusted as the caller identity. Every processed hash is
// persisted, so a transaction executes at most once per store.
type State struct {
	ledger  *ledger.Ledger
	params  ledger.Params // params are used by initialize
	journal Journal
	now     func() time.Time
}

// New creates a State over l. params are the rates applied when an
// initialize transaction is executed.
func New(l *ledger.Ledger, params ledger.Params, opts ...Option) *State {
	s := &State{
		ledger: l,
		params: params,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ledger returns the underlying ledger for reads.
func (s *State) Ledger() *ledger.Ledger {
	return s.ledger
}

// Execute applies one transaction. Ledger rejections are returned wrapped
// so callers can classify them with errors.Is and ledger.Code.
func (s *State) Execute(txData []byte) (*Receipt, error) {
	tx, err := parseTx(txData)
	if err != nil {
		metrics.TxRejected.WithLabelValues("malformed").Inc()
		return nil, err
	}

	caller, err := ledger.IdentityFromBytes(tx.SenderBytes())
	if err != nil {
		metrics.TxRejected.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: sender:\n%w", ErrMalformedTx, err)
	}

	if len(tx.HashBytes()) != 32 {
		metrics.TxRejected.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: hash is %d bytes", ErrMalformedTx, len(tx.HashBytes()))
	}

	mark := ledger.TxMark{At: s.now().UnixNano()}
	copy(mark.Hash[:], tx.HashBytes())

	seen, err := s.ledger.Seen(mark.Hash)
	if err != nil {
		return nil, err
	}

	if seen {
		metrics.TxRejected.WithLabelValues("replay").Inc()
		return nil, fmt.Errorf("%w: %x", ErrDuplicateTx, mark.Hash[:8])
	}

	instruction := string(tx.Instruction())
	receipt := &Receipt{
		TxHash:      hex.EncodeToString(tx.HashBytes()),
		Instruction: instruction,
		Owner:       caller.String(),
		Time:        s.now().UTC(),
	}

	start := time.Now()
	err = s.dispatch(instruction, caller, tx.ArgsBytes(), receipt, mark)
	metrics.TxDuration.WithLabelValues(instruction).Observe(time.Since(start).Seconds())

	if err != nil {
		s.countResult(instruction, err)

		// Rejected transactions are spent too.
		if ledger.IsRejection(err) {
			if merr := s.ledger.Mark(mark); merr != nil {
				logger.Warn("tx mark write failed", "tx", receipt.TxHash, "error", merr)
			}
		}

		logger.Debug("tx rejected",
			"instr", instruction,
			"owner", caller.Short(),
			"code", ledger.Code(err),
			"error", err,
		)

		return nil, fmt.Errorf("%s:\n%w", instruction, err)
	}

	metrics.TxTotal.WithLabelValues(instruction, "ok").Inc()
	s.journalReceipt(receipt)

	return receipt, nil
}

// dispatch runs the handler for instruction and fills the receipt.
// mark commits with the handler's ledger write.
func (s *State) dispatch(instruction string, caller ledger.Identity, args []byte, r *Receipt, mark ledger.TxMark) error {
	switch instruction {
	case genesis.InstrInitialize:
		return s.execInitialize(caller, args, mark)
	case genesis.InstrRegisterUser:
		return s.execRegister(caller, args, mark)
	case genesis.InstrContribute:
		return s.execContribute(caller, args, r, mark)
	case genesis.InstrClaim:
		return s.execClaim(caller, args, r, mark)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownInstruction, instruction)
	}
}

func (s *State) execInitialize(caller ledger.Identity, args []byte, mark ledger.TxMark) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: initialize takes no arguments", ErrMalformedTx)
	}

	if _, err := s.ledger.Initialize(caller, s.params, mark); err != nil {
		return err
	}

	metrics.Users.Set(0)

	return nil
}

func (s *State) execRegister(caller ledger.Identity, args []byte, mark ledger.TxMark) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: register_user takes no arguments", ErrMalformedTx)
	}

	if _, err := s.ledger.RegisterUser(caller, mark); err != nil {
		return err
	}

	if g, err := s.ledger.Aggregate(); err == nil {
		metrics.Users.Set(float64(g.TotalUsers))
	}

	return nil
}

func (s *State) execContribute(caller ledger.Identity, args []byte, r *Receipt, mark ledger.TxMark) error {
	a, err := genesis.DecodeContributeArgs(args)
	if err != nil {
		return fmt.Errorf("%w:\n%w", ErrMalformedTx, err)
	}

	c, err := s.ledger.Contribute(caller, a.BandwidthGB, a.BandwidthMB, mark)
	if err != nil {
		return err
	}

	r.BandwidthMB = c.BandwidthMB
	r.TokensMinted = c.TokensMinted

	metrics.BandwidthMBTotal.Add(float64(c.BandwidthMB))
	metrics.TokensMintedTotal.Add(float64(c.TokensMinted))

	return nil
}

func (s *State) execClaim(caller ledger.Identity, args []byte, r *Receipt, mark ledger.TxMark) error {
	a, err := genesis.DecodeClaimArgs(args)
	if err != nil {
		return fmt.Errorf("%w:\n%w", ErrMalformedTx, err)
	}

	red, err := s.ledger.Claim(caller, a.Amount, mark)
	if err != nil {
		return err
	}

	r.TokensClaimed = red.TokensClaimed
	r.SettlementAmount = red.SettlementAmount

	metrics.TokensClaimedTotal.Add(float64(red.TokensClaimed))
	metrics.SettlementTotal.Add(float64(red.SettlementAmount))

	return nil
}

// countResult labels a failed execution by its error kind.
func (s *State) countResult(instruction string, err error) {
	result := ledger.Code(err)

	switch {
	case errors.Is(err, ErrMalformedTx):
		result = "Malformed"
	case errors.Is(err, ErrUnknownInstruction):
		result = "UnknownInstruction"
		instruction = "unknown"
	}

	metrics.TxTotal.WithLabelValues(instruction, result).Inc()
}

// journalReceipt appends the receipt to the journal.
// The ledger has already committed, so a journal failure is logged, not returned.
func (s *State) journalReceipt(r *Receipt) {
	if s.journal == nil {
		return
	}

	err := s.journal.Record(history.Entry{
		TxHash:           r.TxHash,
		Instruction:      r.Instruction,
		Owner:            r.Owner,
		BandwidthMB:      r.BandwidthMB,
		TokensMinted:     r.TokensMinted,
		TokensClaimed:    r.TokensClaimed,
		SettlementAmount: r.SettlementAmount,
		Time:             r.Time,
	})
	if err != nil {
		logger.Warn("journal write failed", "tx", r.TxHash, "error", err)
	}
}

// parseTx reads the transaction root, converting FlatBuffers panics on
// truncated input into ErrMalformedTx.
func parseTx(data []byte) (tx *types.Transaction, err error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedTx, len(data))
	}

	defer func() {
		if r := recover(); r != nil {
			tx = nil
			err = fmt.Errorf("%w: %v", ErrMalformedTx, r)
		}
	}()

	tx = types.GetRootAsTransaction(data, 0)

	// Touch every field so out-of-range offsets surface here.
	_ = tx.HashBytes()
	_ = tx.SenderBytes()
	_ = tx.SignatureBytes()
	_ = tx.Instruction()
	_ = tx.ArgsBytes()
	_ = tx.Nonce()

	return tx, nil
}
