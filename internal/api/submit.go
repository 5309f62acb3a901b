package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"BandwidthBazaar/internal/ledger"
	"BandwidthBazaar/internal/logger"
	"BandwidthBazaar/internal/metrics"
	"BandwidthBazaar/internal/network"
	"BandwidthBazaar/internal/state"
)

// Rejection is a refused transaction together with the HTTP status it maps to.
// Both transports report it: HTTP as the response status, QUIC in the reply frame.
type Rejection struct {
	Status  int    // Status is the HTTP status code
	Code    string // Code is the error kind, empty for plain validation failures
	Message string // Message is the human-readable reason
	err     error  // err is the underlying cause, if any
}

func (r *Rejection) Error() string {
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return r.err
}

// Submit authenticates, replay-checks and executes one transaction.
// Every failure is a *Rejection.
func (s *Server) Submit(body []byte) (*state.Receipt, error) {
	if len(body) == 0 {
		return nil, &Rejection{Status: http.StatusBadRequest, Message: "empty transaction"}
	}

	if len(body) > maxTxSize {
		return nil, &Rejection{Status: http.StatusRequestEntityTooLarge, Message: "transaction too large"}
	}

	tx, err := validateTx(body)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, errInvalidSignature) {
			reason = "signature"
		}

		metrics.TxRejected.WithLabelValues(reason).Inc()

		return nil, &Rejection{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid transaction: %v", err),
			err:     err,
		}
	}

	var hash [32]byte
	copy(hash[:], tx.HashBytes())

	if err := s.replay.Check(hash, tx.Nonce()); err != nil {
		code, reason := "Replay", "replay"
		if errors.Is(err, ErrStaleNonce) {
			code, reason = "StaleNonce", "stale"
		}

		metrics.TxRejected.WithLabelValues(reason).Inc()

		return nil, &Rejection{Status: http.StatusConflict, Code: code, Message: err.Error(), err: err}
	}

	receipt, err := s.state.Execute(body)
	if err != nil {
		return nil, execRejection(err)
	}

	logger.Debug("tx applied", "hash", receipt.TxHash[:16], "instr", receipt.Instruction)

	return receipt, nil
}

// execRejection maps an execution failure to a status code.
func execRejection(err error) *Rejection {
	switch {
	case errors.Is(err, state.ErrDuplicateTx):
		return &Rejection{Status: http.StatusConflict, Code: "Replay", Message: err.Error(), err: err}
	case errors.Is(err, state.ErrMalformedTx), errors.Is(err, state.ErrUnknownInstruction):
		return &Rejection{Status: http.StatusBadRequest, Message: err.Error(), err: err}
	case ledger.IsRejection(err):
		return &Rejection{Status: http.StatusUnprocessableEntity, Code: ledger.Code(err), Message: err.Error(), err: err}
	default:
		logger.Error("tx execution failed", "error", err)
		return &Rejection{Status: http.StatusInternalServerError, Code: ledger.Code(err), Message: "internal error", err: err}
	}
}

// HandleFrame serves one transaction received over the QUIC ingress.
func (s *Server) HandleFrame(tx []byte) network.Response {
	receipt, err := s.Submit(tx)
	if err != nil {
		var rej *Rejection
		if !errors.As(err, &rej) {
			return network.Response{Status: http.StatusInternalServerError, Error: err.Error()}
		}

		return network.Response{Status: rej.Status, Code: rej.Code, Error: rej.Message}
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		return network.Response{Status: http.StatusInternalServerError, Error: "encode receipt"}
	}

	return network.Response{Status: http.StatusOK, Receipt: data}
}
