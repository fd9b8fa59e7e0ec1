package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/distributor"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/refund"
	"github.com/fairdrop-labs/refund-distributor-go/pkg/types"
)

// handleClaim handles POST /claim: verifies the caller's proof against the
// committed root and pays out once.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	requestID := s.beginMutation(w, r)
	if requestID == "" {
		return
	}

	var req types.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, requestID, fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	caller, ok := s.parseAddress(w, requestID, req.Address)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, requestID, req.Amount)
	if !ok {
		return
	}

	proof, err := distributor.DecodeProof(req.Proof)
	if err != nil {
		s.writeBadRequest(w, requestID, err.Error())
		return
	}

	if err := s.contract.ClaimRefund(caller, amount, proof); err != nil {
		s.writeLedgerError(w, requestID, "claim rejected", err)
		return
	}

	s.logger.Sugar().Infow("Claim accepted",
		"request_id", requestID, "address", caller.Hex(), "amount", amount.Dec())
	s.writeJSON(w, http.StatusOK, types.ClaimedResponse{Address: caller.Hex(), Claimed: true})
}

// handleWithdraw handles POST /withdraw: owner-only residue withdrawal
// after the claim window closed.
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	requestID := s.beginMutation(w, r)
	if requestID == "" {
		return
	}

	var req types.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, requestID, fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	caller, ok := s.parseAddress(w, requestID, req.Address)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, requestID, req.Amount)
	if !ok {
		return
	}

	if err := s.contract.Withdraw(caller, amount); err != nil {
		s.writeLedgerError(w, requestID, "withdraw rejected", err)
		return
	}

	s.logger.Sugar().Infow("Withdraw accepted",
		"request_id", requestID, "owner", caller.Hex(), "amount", amount.Dec())
	s.writeJSON(w, http.StatusOK, types.StatusResponse{
		Root:     s.contract.Root().Hex(),
		Owner:    s.contract.Owner().Hex(),
		Deadline: s.contract.Deadline(),
		Active:   s.contract.Active(),
		Balance:  s.contract.Balance().Dec(),
	})
}

// handleFund handles POST /fund: unconditional balance top-up.
func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	requestID := s.beginMutation(w, r)
	if requestID == "" {
		return
	}

	var req types.FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, requestID, fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	amount, ok := s.parseAmount(w, requestID, req.Amount)
	if !ok {
		return
	}

	if err := s.contract.Fund(amount); err != nil {
		s.writeLedgerError(w, requestID, "fund rejected", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"balance": s.contract.Balance().Dec()})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, types.StatusResponse{
		Root:     s.contract.Root().Hex(),
		Owner:    s.contract.Owner().Hex(),
		Deadline: s.contract.Deadline(),
		Active:   s.contract.Active(),
		Balance:  s.contract.Balance().Dec(),
	})
}

// handleClaimed handles GET /claimed/{address}.
func (s *Server) handleClaimed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hexAddr := strings.TrimPrefix(r.URL.Path, "/claimed/")
	if !common.IsHexAddress(hexAddr) {
		http.Error(w, fmt.Sprintf("invalid address: %s", hexAddr), http.StatusBadRequest)
		return
	}
	addr := common.HexToAddress(hexAddr)

	claimed, err := s.contract.IsClaimed(addr)
	if err != nil {
		http.Error(w, "failed to read claim record", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, types.ClaimedResponse{Address: addr.Hex(), Claimed: claimed})
}

// handleEvents handles GET /events: the ordered, append-only event log.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events := s.contract.Events()
	records := make([]types.EventRecord, len(events))
	for i, ev := range events {
		records[i] = types.EventRecord{
			Kind:      string(ev.Kind),
			Address:   ev.Address.Hex(),
			Amount:    ev.Amount.Dec(),
			Timestamp: ev.Timestamp,
		}
	}

	s.writeJSON(w, http.StatusOK, records)
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(); err != nil {
		http.Error(w, fmt.Sprintf("claim store unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// beginMutation applies the method check and rate limit shared by the
// mutating endpoints and tags the request with an ID. Returns "" when the
// response has already been written.
func (s *Server) beginMutation(w http.ResponseWriter, r *http.Request) string {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return ""
	}

	if !s.limiter.Allow() {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return ""
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	return requestID
}

func (s *Server) parseAddress(w http.ResponseWriter, requestID, hexAddr string) (common.Address, bool) {
	if !common.IsHexAddress(hexAddr) {
		s.writeBadRequest(w, requestID, fmt.Sprintf("invalid address: %q", hexAddr))
		return common.Address{}, false
	}
	return common.HexToAddress(hexAddr), true
}

func (s *Server) parseAmount(w http.ResponseWriter, requestID, amount string) (*uint256.Int, bool) {
	parsed, err := uint256.FromDecimal(amount)
	if err != nil {
		s.writeBadRequest(w, requestID, fmt.Sprintf("invalid amount %q: %v", amount, err))
		return nil, false
	}
	return parsed, true
}

func (s *Server) writeBadRequest(w http.ResponseWriter, requestID, msg string) {
	s.logger.Sugar().Warnw("Bad request", "request_id", requestID, "error", msg)
	s.writeJSON(w, http.StatusBadRequest, types.ErrorResponse{
		Error: msg,
		Kind:  refund.KindInvalidInput.String(),
	})
}

// writeLedgerError maps a state machine rejection to an HTTP status.
func (s *Server) writeLedgerError(w http.ResponseWriter, requestID, context string, err error) {
	kind := refund.KindOf(err)
	s.logger.Sugar().Warnw(context, "request_id", requestID, "kind", kind.String(), "error", err)

	s.writeJSON(w, httpStatusForKind(kind), types.ErrorResponse{
		Error: err.Error(),
		Kind:  kind.String(),
	})
}

func httpStatusForKind(kind refund.Kind) int {
	switch kind {
	case refund.KindInvalidInput:
		return http.StatusBadRequest
	case refund.KindUnauthorized:
		return http.StatusForbidden
	case refund.KindTemporalViolation, refund.KindStateConflict, refund.KindResourceExhausted:
		return http.StatusConflict
	case refund.KindProofMismatch:
		return http.StatusUnprocessableEntity
	case refund.KindTransferFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Sugar().Warnw("Failed to encode response", "error", err)
	}
}
