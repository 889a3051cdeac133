package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/phenomenon0/betchain/pkg/chain"
)

// owned is an owner-gated contract binding.
type owned interface {
	Owner() common.Address
	TransferOwnership(from, newOwner common.Address) (*chain.Receipt, error)
	RenounceOwnership(from common.Address) (*chain.Receipt, error)
}

// OwnerView is the administrator of a contract. A renounced contract has
// the zero address as owner.
type OwnerView struct {
	Contract  string `json:"contract"`
	Owner     string `json:"owner"`
	Renounced bool   `json:"renounced"`
}

// TransferOwnershipRequest hands a contract to NewOwner.
type TransferOwnershipRequest struct {
	NewOwner string `json:"new_owner"`
}

// ownedContract resolves {contract}: "bet" or "oracle".
func (s *Server) ownedContract(w http.ResponseWriter, r *http.Request) (string, owned, bool) {
	name := chi.URLParam(r, "contract")
	switch name {
	case "bet":
		return name, s.d.Bet, true
	case "oracle":
		return name, s.d.Oracle, true
	default:
		respondError(w, r, http.StatusNotFound, "unknown contract "+name)
		return "", nil, false
	}
}

func ownerView(name string, c owned) OwnerView {
	owner := c.Owner()
	return OwnerView{
		Contract:  name,
		Owner:     owner.Hex(),
		Renounced: owner == (common.Address{}),
	}
}

func (s *Server) getOwner(w http.ResponseWriter, r *http.Request) {
	name, c, ok := s.ownedContract(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, ownerView(name, c))
}

func (s *Server) transferOwnership(w http.ResponseWriter, r *http.Request) {
	name, c, ok := s.ownedContract(w, r)
	if !ok {
		return
	}
	var req TransferOwnershipRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.NewOwner) {
		respondError(w, r, http.StatusBadRequest, "invalid new_owner")
		return
	}
	receipt, err := c.TransferOwnership(accountFrom(r), common.HexToAddress(req.NewOwner))
	if err != nil {
		s.respondRevert(w, r, "transfer_ownership", err)
		return
	}
	view := ownerView(name, c)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"contract":  view.Contract,
		"owner":     view.Owner,
		"renounced": view.Renounced,
		"tx_hash":   receipt.TxHash.Hex(),
	})
}

func (s *Server) renounceOwnership(w http.ResponseWriter, r *http.Request) {
	name, c, ok := s.ownedContract(w, r)
	if !ok {
		return
	}
	receipt, err := c.RenounceOwnership(accountFrom(r))
	if err != nil {
		s.respondRevert(w, r, "renounce_ownership", err)
		return
	}
	view := ownerView(name, c)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"contract":  view.Contract,
		"owner":     view.Owner,
		"renounced": view.Renounced,
		"tx_hash":   receipt.TxHash.Hex(),
	})
}
