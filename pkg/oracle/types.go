package oracle

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// SportKind is the category of a sport event.
type SportKind uint8

const (
	Soccer SportKind = iota
	Rugby
	Basketball
)

var sportKindNames = []string{"soccer", "rugby", "basketball"}

func (k SportKind) String() string {
	if int(k) < len(sportKindNames) {
		return sportKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known category.
func (k SportKind) Valid() bool {
	return int(k) < len(sportKindNames)
}

func (k SportKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SportKind) UnmarshalText(text []byte) error {
	parsed, err := ParseSportKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseSportKind parses a category name, case-insensitively.
func ParseSportKind(s string) (SportKind, error) {
	for i, name := range sportKindNames {
		if strings.EqualFold(s, name) {
			return SportKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sport kind %q", s)
}

// EventOutcome is the lifecycle state of a sport event.
type EventOutcome uint8

const (
	Pending EventOutcome = iota
	Underway
	Draw
	Decided
)

var outcomeNames = []string{"pending", "underway", "draw", "decided"}

func (o EventOutcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// Terminal reports whether no further transition is allowed from o.
func (o EventOutcome) Terminal() bool {
	return o == Draw || o == Decided
}

func (o EventOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *EventOutcome) UnmarshalText(text []byte) error {
	parsed, err := ParseEventOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ParseEventOutcome parses an outcome name, case-insensitively.
func ParseEventOutcome(s string) (EventOutcome, error) {
	for i, name := range outcomeNames {
		if strings.EqualFold(s, name) {
			return EventOutcome(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event outcome %q", s)
}

// NoWinner is the winner index of an event that is not Decided.
const NoWinner = -1

// SportEvent is a registered event. Identity fields never change after
// registration; Outcome and Winner move through DeclareOutcome.
type SportEvent struct {
	ID               common.Hash  `json:"id"`
	Name             string       `json:"name"`
	Participants     string       `json:"participants"`
	ParticipantCount uint8        `json:"participant_count"`
	Date             int64        `json:"date"`
	Kind             SportKind    `json:"kind"`
	Outcome          EventOutcome `json:"outcome"`
	Winner           int          `json:"winner"`
}

// OpenForBetting reports whether wagers may still be placed at unix time now.
func (e SportEvent) OpenForBetting(now int64) bool {
	return e.Outcome == Pending && now < e.Date
}

// emptyEvent is returned for lookups of unknown ids.
func emptyEvent(id common.Hash) SportEvent {
	return SportEvent{ID: id, Outcome: Pending, Winner: NoWinner}
}

// EventID derives the identifier of an event from its identity fields as
// keccak256(abi.encodePacked(name, participantCount, date, kind)), with the
// string, uint8, uint256, uint8 layout. Anyone holding the inputs can
// recompute it off-chain.
func EventID(name string, participantCount uint8, date int64, kind SportKind) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(name),
		[]byte{participantCount},
		math.U256Bytes(big.NewInt(date)),
		[]byte{byte(kind)},
	)
}
