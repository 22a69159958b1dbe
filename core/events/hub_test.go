package events

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
)

func TestHubDeliversRenderedEvents(t *testing.T) {
	hub := NewHub(4)
	ch, cancel := hub.Subscribe()
	defer cancel()

	var proposer [20]byte
	proposer[19] = 9
	hub.Emit(ProposalCreated{ID: 7, Proposer: proposer, CreatedAt: time.Unix(100, 0)})

	select {
	case evt := <-ch:
		if evt.Type != TypeProposalCreated {
			t.Fatalf("unexpected type %q", evt.Type)
		}
		if evt.Attributes["proposalId"] != "7" {
			t.Fatalf("unexpected proposal id %q", evt.Attributes["proposalId"])
		}
		if evt.Attr("createdAt") != "100" {
			t.Fatalf("unexpected createdAt %q", evt.Attr("createdAt"))
		}
		if evt.Sequence != 1 {
			t.Fatalf("sequence = %d, want 1", evt.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(1)
	_, cancel := hub.Subscribe()
	hub.Emit(Transfer{Amount: uint256.NewInt(1)})
	hub.Emit(Transfer{Amount: uint256.NewInt(2)})
	if hub.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", hub.Dropped())
	}
	cancel()
	cancel()
	if hub.Subscribers() != 0 {
		t.Fatalf("cancel did not remove subscriber")
	}
	hub.Emit(Transfer{Amount: uint256.NewInt(3)})
}

func TestHubSequencesCountDroppedEvents(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Emit(Transfer{Amount: uint256.NewInt(1)})
	first := <-ch
	hub.Emit(Transfer{Amount: uint256.NewInt(2)})
	hub.Emit(Transfer{Amount: uint256.NewInt(3)})
	second := <-ch
	hub.Emit(Transfer{Amount: uint256.NewInt(4)})
	third := <-ch
	if first.Sequence != 1 || second.Sequence != 2 || third.Sequence != 4 {
		t.Fatalf("sequences = %d,%d,%d, want 1,2,4", first.Sequence, second.Sequence, third.Sequence)
	}
}

func TestMultiForwardsToEveryEmitter(t *testing.T) {
	a, b := NewHub(1), NewHub(1)
	chA, cancelA := a.Subscribe()
	defer cancelA()
	chB, cancelB := b.Subscribe()
	defer cancelB()

	Multi{a, nil, b}.Emit(Transfer{Amount: uint256.NewInt(5)})
	if got := (<-chA).Attr("amount"); got != "5" {
		t.Fatalf("first emitter amount = %q", got)
	}
	if got := (<-chB).Attr("amount"); got != "5" {
		t.Fatalf("second emitter amount = %q", got)
	}
}

func TestExecutedEventOmitsEmptyFields(t *testing.T) {
	evt := ProposalExecuted{ID: 1, Amount: uint256.NewInt(20)}.Event()
	if _, ok := evt.Attributes["staker"]; ok {
		t.Fatalf("zero staker should be omitted")
	}
	if _, ok := evt.Attributes["releaseError"]; ok {
		t.Fatalf("empty release error should be omitted")
	}
	if evt.Attributes["yesVotes"] != "0" {
		t.Fatalf("nil tallies should render as zero, got %q", evt.Attributes["yesVotes"])
	}
}
