package api

import (
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/phenomenon0/betchain/pkg/eth"
)

// TokenView describes the DAI ledger.
type TokenView struct {
	Address     string `json:"address"`
	TotalSupply string `json:"total_supply"`
}

func (s *Server) getToken(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, TokenView{
		Address:     s.d.DAI.Address().Hex(),
		TotalSupply: eth.FormatEther(s.d.DAI.TotalSupply()),
	})
}

// TokenTransferRequest moves Amount DAI from the caller to To.
type TokenTransferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) transferToken(w http.ResponseWriter, r *http.Request) {
	var req TokenTransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, amount, ok := addressAndAmount(w, r, req.To, req.Amount)
	if !ok {
		return
	}
	receipt, err := s.d.DAI.Transfer(accountFrom(r), to, amount)
	if err != nil {
		s.respondRevert(w, r, "dai_transfer", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"to":      to.Hex(),
		"amount":  eth.FormatEther(amount),
		"tx_hash": receipt.TxHash.Hex(),
	})
}

// TokenApproveRequest lets Spender move up to Amount of the caller's DAI.
type TokenApproveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *Server) approveToken(w http.ResponseWriter, r *http.Request) {
	var req TokenApproveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	spender, amount, ok := addressAndAmount(w, r, req.Spender, req.Amount)
	if !ok {
		return
	}
	receipt, err := s.d.DAI.Approve(accountFrom(r), spender, amount)
	if err != nil {
		s.respondRevert(w, r, "dai_approve", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"spender": spender.Hex(),
		"amount":  eth.FormatEther(amount),
		"tx_hash": receipt.TxHash.Hex(),
	})
}

func (s *Server) getAllowance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner, spender := q.Get("owner"), q.Get("spender")
	if !common.IsHexAddress(owner) || !common.IsHexAddress(spender) {
		respondError(w, r, http.StatusBadRequest, "owner and spender must be addresses")
		return
	}
	allowance := s.d.DAI.Allowance(common.HexToAddress(owner), common.HexToAddress(spender))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"owner":     common.HexToAddress(owner).Hex(),
		"spender":   common.HexToAddress(spender).Hex(),
		"allowance": eth.FormatEther(allowance),
	})
}

// PositionView is a DefiPool deposit.
type PositionView struct {
	Address   string `json:"address"`
	Principal string `json:"principal"`
	Since     string `json:"since"`
}

// PoolDepositRequest deposits Amount DAI, credited to Beneficiary or the caller.
type PoolDepositRequest struct {
	Amount      string `json:"amount"`
	Beneficiary string `json:"beneficiary,omitempty"`
}

func (s *Server) depositPool(w http.ResponseWriter, r *http.Request) {
	var req PoolDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	beneficiary := accountFrom(r)
	if req.Beneficiary != "" {
		if !common.IsHexAddress(req.Beneficiary) {
			respondError(w, r, http.StatusBadRequest, "invalid beneficiary")
			return
		}
		beneficiary = common.HexToAddress(req.Beneficiary)
	}
	amount, err := eth.ParseEther(req.Amount)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := s.d.Pool.Deposit(accountFrom(r), amount, beneficiary)
	if err != nil {
		s.respondRevert(w, r, "pool_deposit", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"beneficiary": beneficiary.Hex(),
		"amount":      eth.FormatEther(amount),
		"tx_hash":     receipt.TxHash.Hex(),
	})
}

func (s *Server) withdrawPool(w http.ResponseWriter, r *http.Request) {
	total, receipt, err := s.d.Pool.Withdraw(accountFrom(r))
	if err != nil {
		s.respondRevert(w, r, "pool_withdraw", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"paid":    eth.FormatEther(total),
		"tx_hash": receipt.TxHash.Hex(),
	})
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		respondError(w, r, http.StatusBadRequest, "invalid address")
		return
	}
	addr := common.HexToAddress(raw)
	pos, ok := s.d.Pool.PositionOf(addr)
	if !ok {
		respondError(w, r, http.StatusNotFound, "no deposit")
		return
	}
	respondJSON(w, http.StatusOK, PositionView{
		Address:   addr.Hex(),
		Principal: eth.FormatEther(pos.Principal),
		Since:     pos.Since.UTC().Format(time.RFC3339),
	})
}

func addressAndAmount(w http.ResponseWriter, r *http.Request, rawAddr, rawAmount string) (common.Address, *big.Int, bool) {
	if !common.IsHexAddress(rawAddr) {
		respondError(w, r, http.StatusBadRequest, "invalid address")
		return common.Address{}, nil, false
	}
	amount, err := eth.ParseEther(rawAmount)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return common.Address{}, nil, false
	}
	return common.HexToAddress(rawAddr), amount, true
}
