package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/betchain/pkg/eth"
	"github.com/phenomenon0/betchain/pkg/oracle"
)

// EventView is the API rendering of a registered event.
type EventView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Participants     []string `json:"participants"`
	ParticipantCount uint8    `json:"participant_count"`
	Date             int64    `json:"date"`
	StartsAt         string   `json:"starts_at"`
	Kind             string   `json:"kind"`
	Outcome          string   `json:"outcome"`
	Winner           int      `json:"winner"`
	WinnerName       string   `json:"winner_name,omitempty"`
	Open             bool     `json:"open"`
}

func (s *Server) eventView(e oracle.SportEvent) EventView {
	v := EventView{
		ID:               e.ID.Hex(),
		Name:             e.Name,
		Participants:     oracle.SplitParticipants(e.Participants),
		ParticipantCount: e.ParticipantCount,
		Date:             e.Date,
		StartsAt:         time.Unix(e.Date, 0).UTC().Format(time.RFC3339),
		Kind:             e.Kind.String(),
		Outcome:          e.Outcome.String(),
		Winner:           e.Winner,
		Open:             e.OpenForBetting(s.chain.Now().Unix()),
	}
	if e.Outcome == oracle.Decided && e.Winner >= 0 && e.Winner < len(v.Participants) {
		v.WinnerName = v.Participants[e.Winner]
	}
	if v.Participants == nil {
		v.Participants = []string{}
	}
	return v
}

func (s *Server) eventViews(ids []common.Hash) []EventView {
	views := make([]EventView, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.d.Oracle.Lookup(id); ok {
			views = append(views, s.eventView(e))
		}
	}
	return views
}

// listBettableEvents returns the events open for betting, most recent first.
func (s *Server) listBettableEvents(w http.ResponseWriter, r *http.Request) {
	views := s.eventViews(s.d.Bet.GetBettableEvents())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": views,
		"count":  len(views),
	})
}

func (s *Server) listAllEvents(w http.ResponseWriter, r *http.Request) {
	views := s.eventViews(s.d.Oracle.GetAllSportEvents())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": views,
		"count":  len(views),
	})
}

// latestEvent returns the most recent event, or the most recent pending one with ?pending=true.
func (s *Server) latestEvent(w http.ResponseWriter, r *http.Request) {
	pending := false
	if raw := r.URL.Query().Get("pending"); raw != "" {
		var err error
		if pending, err = strconv.ParseBool(raw); err != nil {
			respondError(w, r, http.StatusBadRequest, "invalid pending flag")
			return
		}
	}
	event, err := s.d.Bet.GetLatestEvent(pending)
	if err != nil {
		s.respondRevert(w, r, "get_latest_event", err)
		return
	}
	if event.ID == (common.Hash{}) {
		respondError(w, r, http.StatusNotFound, "no matching event")
		return
	}
	respondJSON(w, http.StatusOK, s.eventView(event))
}

// getEvent answers 404 for an unknown id. The registry's own read path
// returns an empty record instead; over HTTP a miss is a missing resource.
func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	event, exists := s.d.Oracle.Lookup(id)
	if !exists {
		s.respondRevert(w, r, "get_event", oracle.ErrEventNotFound)
		return
	}
	respondJSON(w, http.StatusOK, s.eventView(event))
}

// WagerView is one open bet.
type WagerView struct {
	EventID      string `json:"event_id"`
	Player       string `json:"player"`
	ChosenWinner int    `json:"chosen_winner"`
	Amount       string `json:"amount"`
}

func (s *Server) eventWagers(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	wagers := s.d.Bet.GetEventWagers(id)
	views := make([]WagerView, len(wagers))
	for i, wg := range wagers {
		views[i] = WagerView{
			EventID:      wg.EventID.Hex(),
			Player:       wg.Player.Hex(),
			ChosenWinner: wg.ChosenWinner,
			Amount:       eth.FormatEther(wg.Amount),
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wagers": views,
		"count":  len(views),
	})
}

// AddEventRequest registers an event.
type AddEventRequest struct {
	Name             string   `json:"name"`
	Participants     []string `json:"participants"`
	ParticipantCount uint8    `json:"participant_count,omitempty"`
	Date             int64    `json:"date"`
	Kind             string   `json:"kind"`
}

func (s *Server) addEvent(w http.ResponseWriter, r *http.Request) {
	var req AddEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, err := oracle.ParseSportKind(req.Kind)
	if err != nil {
		s.respondRevert(w, r, "add_sport_event", oracle.ErrInvalidKind)
		return
	}
	count := req.ParticipantCount
	if count == 0 {
		count = uint8(len(req.Participants))
	}

	id, receipt, err := s.d.Oracle.AddSportEvent(accountFrom(r), req.Name, oracle.JoinParticipants(req.Participants), count, req.Date, kind)
	if err != nil {
		s.respondRevert(w, r, "add_sport_event", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      id.Hex(),
		"tx_hash": receipt.TxHash.Hex(),
	})
}

// DeclareOutcomeRequest moves an event through its lifecycle.
type DeclareOutcomeRequest struct {
	Outcome string `json:"outcome"`
	Winner  *int   `json:"winner,omitempty"`
}

func (s *Server) declareOutcome(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	var req DeclareOutcomeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	outcome, err := oracle.ParseEventOutcome(req.Outcome)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	winner := oracle.NoWinner
	if req.Winner != nil {
		winner = *req.Winner
	}

	receipt, err := s.d.Oracle.DeclareOutcome(accountFrom(r), id, outcome, winner)
	if err != nil {
		s.respondRevert(w, r, "declare_outcome", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":      id.Hex(),
		"outcome": outcome.String(),
		"winner":  winner,
		"tx_hash": receipt.TxHash.Hex(),
	})
}

// settleEvent settles every open bet on a final event. Anyone may call it.
func (s *Server) settleEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	settled, receipt, err := s.d.Bet.SettleEvent(accountFrom(r), id)
	if err != nil {
		s.respondRevert(w, r, "settle_event", err)
		return
	}
	s.updateEscrow()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":      id.Hex(),
		"settled": settled,
		"tx_hash": receipt.TxHash.Hex(),
	})
}

func (s *Server) getOracle(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":   s.d.Bet.GetOracleAddress().Hex(),
		"connected": s.d.Bet.TestOracleConnection(),
		"owner":     s.d.Bet.Owner().Hex(),
	})
}

// SetOracleRequest rebinds the engine to a registry.
type SetOracleRequest struct {
	Address string `json:"address"`
}

func (s *Server) setOracle(w http.ResponseWriter, r *http.Request) {
	var req SetOracleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, r, http.StatusBadRequest, "invalid address")
		return
	}
	addr := common.HexToAddress(req.Address)
	receipt, err := s.d.Bet.SetOracleAddress(accountFrom(r), addr)
	if err != nil {
		s.respondRevert(w, r, "set_oracle_address", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":   addr.Hex(),
		"connected": s.d.Bet.TestOracleConnection(),
		"tx_hash":   receipt.TxHash.Hex(),
	})
}
