package api

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/phenomenon0/betchain/pkg/bet"
	"github.com/phenomenon0/betchain/pkg/eth"
)

// BetView is a caller's open bet.
type BetView struct {
	EventID      string `json:"event_id"`
	ChosenWinner int    `json:"chosen_winner"`
	Amount       string `json:"amount"`
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	player := accountFrom(r)
	ids := s.d.Bet.GetBettedEvents(player)
	bets := make([]BetView, 0, len(ids))
	for _, id := range ids {
		chosen, amount, err := s.d.Bet.GetBetPayload(player, id)
		if err != nil {
			continue
		}
		bets = append(bets, BetView{EventID: id.Hex(), ChosenWinner: chosen, Amount: eth.FormatEther(amount)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"player": player.Hex(),
		"bets":   bets,
		"count":  len(bets),
	})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	chosen, amount, err := s.d.Bet.GetBetPayload(accountFrom(r), id)
	if err != nil {
		s.respondRevert(w, r, "get_bet_payload", err)
		return
	}
	respondJSON(w, http.StatusOK, BetView{EventID: id.Hex(), ChosenWinner: chosen, Amount: eth.FormatEther(amount)})
}

// PlaceBetRequest stakes Amount ether on ChosenWinner.
type PlaceBetRequest struct {
	EventID      string `json:"event_id"`
	ChosenWinner int    `json:"chosen_winner"`
	Amount       string `json:"amount"`
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, ok := parseHash(req.EventID)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "invalid event id")
		return
	}
	amount, err := eth.ParseEther(req.Amount)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := s.d.Bet.PlaceBet(accountFrom(r), id, req.ChosenWinner, amount)
	if err != nil {
		s.respondRevert(w, r, "place_bet", err)
		return
	}
	s.updateEscrow()
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"event_id":      id.Hex(),
		"chosen_winner": req.ChosenWinner,
		"amount":        eth.FormatEther(amount),
		"tx_hash":       receipt.TxHash.Hex(),
	})
}

func (s *Server) cancelBet(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	receipt, err := s.d.Bet.CancelBet(accountFrom(r), id)
	if err != nil {
		s.respondRevert(w, r, "cancel_bet", err)
		return
	}
	s.updateEscrow()

	refund := "0"
	if l, found := receipt.FindLog(bet.LogBetCancelled); found {
		if amount, ok := l.Fields["amount"].(*big.Int); ok {
			refund = eth.FormatEther(amount)
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": id.Hex(),
		"refund":   refund,
		"tx_hash":  receipt.TxHash.Hex(),
	})
}

func (s *Server) settleBet(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	payout, receipt, err := s.d.Bet.SettleBet(accountFrom(r), id)
	if err != nil {
		s.respondRevert(w, r, "settle_bet", err)
		return
	}
	s.updateEscrow()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": id.Hex(),
		"payout":   eth.FormatEther(payout),
		"tx_hash":  receipt.TxHash.Hex(),
	})
}

// AccountView summarizes an address.
type AccountView struct {
	Address    string   `json:"address"`
	Balance    string   `json:"balance"`
	DAIBalance string   `json:"dai_balance"`
	OpenBets   []string `json:"open_bets"`
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		respondError(w, r, http.StatusBadRequest, "invalid address")
		return
	}
	addr := common.HexToAddress(raw)

	ids := s.d.Bet.GetBettedEvents(addr)
	open := make([]string, len(ids))
	for i, id := range ids {
		open[i] = id.Hex()
	}
	respondJSON(w, http.StatusOK, AccountView{
		Address:    addr.Hex(),
		Balance:    eth.FormatEther(s.chain.Balance(addr)),
		DAIBalance: eth.FormatEther(s.d.DAI.BalanceOf(addr)),
		OpenBets:   open,
	})
}
