package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/phenomenon0/betchain/pkg/chain"
)

var (
	admin  = common.HexToAddress("0xad00000000000000000000000000000000000001")
	player = common.HexToAddress("0x9900000000000000000000000000000000000002")
	start  = time.Unix(1_700_000_000, 0)
)

type fixture struct {
	chain  *chain.Chain
	addr   common.Address
	oracle *BetOracle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := chain.New()
	c.SetTime(start)
	o := New()
	addr, _, err := c.Deploy(admin, o)
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	return &fixture{chain: c, addr: addr, oracle: o}
}

func (f *fixture) add(t *testing.T, name, participants string, count uint8, date int64, kind SportKind) common.Hash {
	t.Helper()
	id, err := f.tryAdd(admin, name, participants, count, date, kind)
	if err != nil {
		t.Fatalf("AddSportEvent(%s) failed: %v", name, err)
	}
	return id
}

func (f *fixture) tryAdd(from common.Address, name, participants string, count uint8, date int64, kind SportKind) (common.Hash, error) {
	var id common.Hash
	_, err := f.chain.Transact(from, f.addr, nil, func(ctx *chain.Ctx) error {
		var err error
		id, err = f.oracle.AddSportEvent(ctx, name, participants, count, date, kind)
		return err
	})
	return id, err
}

func (f *fixture) declare(from common.Address, id common.Hash, outcome EventOutcome, winner int) error {
	_, err := f.chain.Transact(from, f.addr, nil, func(ctx *chain.Ctx) error {
		return f.oracle.DeclareOutcome(ctx, id, outcome, winner)
	})
	return err
}

func (f *fixture) pending(t *testing.T) []common.Hash {
	t.Helper()
	var ids []common.Hash
	if err := f.chain.Call(player, f.addr, func(ctx *chain.Ctx) error {
		ids = f.oracle.GetPendingEvents(ctx)
		return nil
	}); err != nil {
		t.Fatalf("GetPendingEvents failed: %v", err)
	}
	return ids
}

func TestEventIDPackedLayout(t *testing.T) {
	date := int64(1_700_604_800)
	packed := []byte("PSG vs OM")
	packed = append(packed, 2)
	packed = append(packed, common.LeftPadBytes(big.NewInt(date).Bytes(), 32)...)
	packed = append(packed, byte(Soccer))

	want := crypto.Keccak256Hash(packed)
	if got := EventID("PSG vs OM", 2, date, Soccer); got != want {
		t.Errorf("EventID = %s, want %s", got.Hex(), want.Hex())
	}

	if EventID("PSG vs OM", 2, date, Rugby) == want {
		t.Error("Kind must contribute to the id")
	}
}

func TestAddSportEvent(t *testing.T) {
	f := newFixture(t)
	date := start.Add(7 * 24 * time.Hour).Unix()

	id := f.add(t, "PSG vs OM", "PSG|OM", 2, date, Soccer)

	if id != EventID("PSG vs OM", 2, date, Soccer) {
		t.Error("Returned id should match the derived id")
	}
	event := f.oracle.GetEvent(id)
	if event.ID != id || event.Name != "PSG vs OM" || event.Participants != "PSG|OM" ||
		event.ParticipantCount != 2 || event.Date != date || event.Kind != Soccer {
		t.Errorf("Stored event does not match inputs: %+v", event)
	}
	if event.Outcome != Pending || event.Winner != NoWinner {
		t.Errorf("Expected pending event with no winner, got %s/%d", event.Outcome, event.Winner)
	}
	if !f.oracle.EventExists(id) {
		t.Error("EventExists should be true for a registered id")
	}

	logs := f.chain.Logs()
	l := logs[len(logs)-1]
	if l.Name != LogSportEventAdded || l.Fields["eventId"] != id || l.Contract != "BetOracle" {
		t.Errorf("Unexpected log: %+v", l)
	}
}

func TestAddSportEventDuplicate(t *testing.T) {
	f := newFixture(t)
	date := start.Add(time.Hour).Unix()
	f.add(t, "Final", "A|B", 2, date, Basketball)

	_, err := f.tryAdd(admin, "Final", "A|B", 2, date, Basketball)
	if !errors.Is(err, chain.ErrState) || err.Error() != "Event already exists" {
		t.Errorf("Expected duplicate rejection, got %v", err)
	}
	if len(f.oracle.GetAllSportEvents()) != 1 {
		t.Error("Duplicate must not be stored")
	}
}

func TestAddSportEventValidation(t *testing.T) {
	f := newFixture(t)
	date := start.Add(time.Hour).Unix()

	tests := []struct {
		name         string
		from         common.Address
		participants string
		count        uint8
		kind         SportKind
		reason       string
	}{
		{"not owner", player, "A|B", 2, Soccer, "Ownable: caller is not the owner"},
		{"count mismatch", admin, "A|B|C", 2, Soccer, "Invalid participant count"},
		{"single participant", admin, "A", 1, Soccer, "Invalid participant count"},
		{"empty name", admin, "A||C", 3, Soccer, "Invalid participant count"},
		{"duplicate participant", admin, "Atlético|atletico", 2, Soccer, "Duplicate participant"},
		{"unknown kind", admin, "A|B", 2, SportKind(9), "Invalid sport kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tryAdd(tt.from, tt.name, tt.participants, tt.count, date, tt.kind)
			if err == nil || err.Error() != tt.reason {
				t.Errorf("Expected %q, got %v", tt.reason, err)
			}
		})
	}
	if len(f.oracle.GetAllSportEvents()) != 0 {
		t.Error("No event should have been stored")
	}
}

func TestGetEventUnknown(t *testing.T) {
	f := newFixture(t)
	unknown := crypto.Keccak256Hash([]byte("missing"))

	event := f.oracle.GetEvent(unknown)
	if event.ID != unknown {
		t.Errorf("Sentinel should echo the requested id, got %s", event.ID.Hex())
	}
	if event.Name != "" || event.Participants != "" || event.ParticipantCount != 0 || event.Date != 0 {
		t.Errorf("Sentinel should have zero fields: %+v", event)
	}
	if event.Outcome != Pending || event.Winner != NoWinner {
		t.Errorf("Sentinel should be pending with no winner: %+v", event)
	}
	if f.oracle.EventExists(unknown) {
		t.Error("EventExists should be false for an unknown id")
	}
	if _, ok := f.oracle.Lookup(unknown); ok {
		t.Error("Lookup should miss for an unknown id")
	}
}

func TestPendingEventsReverseOrder(t *testing.T) {
	f := newFixture(t)
	soon := start.Add(time.Hour).Unix()
	later := start.Add(48 * time.Hour).Unix()

	first := f.add(t, "first", "A|B", 2, later, Soccer)
	started := f.add(t, "starts soon", "A|B", 2, soon, Soccer)
	third := f.add(t, "third", "A|B", 2, later, Rugby)
	declared := f.add(t, "declared", "A|B", 2, later, Basketball)
	if err := f.declare(admin, declared, Draw, NoWinner); err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	f.chain.AdvanceTime(2 * time.Hour)

	ids := f.pending(t)
	if len(ids) != 2 || ids[0] != third || ids[1] != first {
		t.Errorf("Expected [third first], got %v", ids)
	}
	for _, id := range ids {
		if id == started || id == declared {
			t.Errorf("Closed event %s listed as pending", id.Hex())
		}
	}

	all := f.oracle.GetAllSportEvents()
	if len(all) != 4 || all[0] != first || all[3] != declared {
		t.Errorf("GetAllSportEvents should keep insertion order, got %v", all)
	}
}

func TestGetLatestEvent(t *testing.T) {
	f := newFixture(t)
	date := start.Add(time.Hour).Unix()

	if latest := f.oracle.GetLatestEvent(false); latest.Name != "" || latest.Winner != NoWinner {
		t.Errorf("Expected empty record on empty registry, got %+v", latest)
	}

	a := f.add(t, "a", "A|B", 2, date, Soccer)
	b := f.add(t, "b", "A|B", 2, date, Soccer)
	if err := f.declare(admin, b, Decided, 0); err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	if latest := f.oracle.GetLatestEvent(false); latest.ID != b {
		t.Errorf("Expected latest %s, got %s", b.Hex(), latest.ID.Hex())
	}
	if latest := f.oracle.GetLatestEvent(true); latest.ID != a {
		t.Errorf("Expected latest pending %s, got %s", a.Hex(), latest.ID.Hex())
	}
}

func TestDeclareOutcome(t *testing.T) {
	f := newFixture(t)
	date := start.Add(time.Hour).Unix()
	id := f.add(t, "match", "A|B|C", 3, date, Soccer)

	if err := f.declare(player, id, Underway, NoWinner); !errors.Is(err, chain.ErrAuthorization) {
		t.Errorf("Expected authorization error, got %v", err)
	}
	if err := f.declare(admin, common.Hash{1}, Underway, NoWinner); !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if err := f.declare(admin, id, Pending, NoWinner); !errors.Is(err, chain.ErrState) {
		t.Errorf("Pending to Pending should be rejected, got %v", err)
	}
	if err := f.declare(admin, id, Underway, 1); !errors.Is(err, chain.ErrValue) {
		t.Errorf("Underway with a winner should be rejected, got %v", err)
	}
	if err := f.declare(admin, id, Underway, NoWinner); err != nil {
		t.Fatalf("Underway failed: %v", err)
	}
	if err := f.declare(admin, id, Decided, 3); err == nil || err.Error() != "Winner index out of range" {
		t.Errorf("Expected winner out of range, got %v", err)
	}
	if err := f.declare(admin, id, Decided, -1); !errors.Is(err, chain.ErrValue) {
		t.Errorf("Decided without winner should be rejected, got %v", err)
	}
	if err := f.declare(admin, id, Decided, 2); err != nil {
		t.Fatalf("Decided failed: %v", err)
	}

	event := f.oracle.GetEvent(id)
	if event.Outcome != Decided || event.Winner != 2 {
		t.Errorf("Expected decided/2, got %s/%d", event.Outcome, event.Winner)
	}

	if err := f.declare(admin, id, Draw, NoWinner); err == nil || err.Error() != "Invalid outcome transition" {
		t.Errorf("Terminal outcome must not be re-declared, got %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	f := newFixture(t)
	if !f.oracle.TestConnection() {
		t.Error("TestConnection should always succeed")
	}
	var addr common.Address
	f.chain.Call(player, f.addr, func(ctx *chain.Ctx) error {
		addr = f.oracle.GetAddress(ctx)
		return nil
	})
	if addr != f.addr {
		t.Errorf("GetAddress = %s, want %s", addr.Hex(), f.addr.Hex())
	}
}

func TestNormalizeParticipant(t *testing.T) {
	tests := map[string]string{
		"Atlético Madrid":        "atletico madrid",
		"  Olympique   de  Lyon": "olympique de lyon",
		"PSG":                    "psg",
	}
	for in, want := range tests {
		if got := NormalizeParticipant(in); got != want {
			t.Errorf("NormalizeParticipant(%q) = %q, want %q", in, got, want)
		}
	}

	names := SplitParticipants("PSG | OM")
	if len(names) != 2 || names[0] != "PSG" || names[1] != "OM" {
		t.Errorf("Unexpected split: %v", names)
	}
	if JoinParticipants(names) != "PSG|OM" {
		t.Error("JoinParticipants should reverse SplitParticipants")
	}
}

func TestParseEnums(t *testing.T) {
	if k, err := ParseSportKind("Rugby"); err != nil || k != Rugby {
		t.Errorf("ParseSportKind(Rugby) = %v, %v", k, err)
	}
	if _, err := ParseSportKind("cricket"); err == nil {
		t.Error("Expected error for unknown kind")
	}
	if o, err := ParseEventOutcome("decided"); err != nil || o != Decided {
		t.Errorf("ParseEventOutcome(decided) = %v, %v", o, err)
	}
	if !Draw.Terminal() || Underway.Terminal() {
		t.Error("Unexpected Terminal result")
	}
}
