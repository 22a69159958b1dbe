package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakegov/storage"
)

func TestJournalAppendsChainedRecords(t *testing.T) {
	j, err := Open(storage.NewMemDB())
	require.NoError(t, err)

	ts := time.Unix(1_700_000_000, 0)
	first, err := j.Append(Record{Timestamp: ts, Event: EventProposed, ProposalID: ForProposal(0), Actor: "mdot1owner"})
	require.NoError(t, err)
	second, err := j.Append(Record{Timestamp: ts.Add(time.Second), Event: EventVote, ProposalID: ForProposal(0), Details: "support=true weight=20"})
	require.NoError(t, err)

	require.Equal(t, uint64(0), first.Sequence)
	require.Equal(t, uint64(1), second.Sequence)
	require.Equal(t, first.Hash, second.PrevHash)
	require.NotEmpty(t, first.CorrelationID)
	require.Equal(t, uint64(2), j.Len())
	require.NoError(t, j.Verify())

	page, err := j.List(1, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, EventVote, page[0].Event)
	require.Equal(t, uint64(0), *page[0].ProposalID)

	empty, err := j.List(5, 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestJournalDetectsTampering(t *testing.T) {
	db := storage.NewMemDB()
	j, err := Open(db)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := j.Append(Record{Timestamp: time.Unix(int64(i), 0), Event: EventTransfer, Details: "amount=40"})
		require.NoError(t, err)
	}

	rec, err := j.Get(1)
	require.NoError(t, err)
	rec.Details = "amount=4000"
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, db.Put(recordKey(1), raw))

	require.ErrorIs(t, j.Verify(), ErrChainBroken)
}

func TestJournalResumesFromLevelDB(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	j1, err := Open(db1)
	require.NoError(t, err)
	last, err := j1.Append(Record{Timestamp: time.Unix(10, 0), Event: EventStake, Actor: "mdot1staker"})
	require.NoError(t, err)
	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()
	j2, err := Open(db2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), j2.Len())

	next, err := j2.Append(Record{Timestamp: time.Unix(11, 0), Event: EventExecuted, ProposalID: ForProposal(0)})
	require.NoError(t, err)
	require.Equal(t, uint64(1), next.Sequence)
	require.Equal(t, last.Hash, next.PrevHash)
	require.NoError(t, j2.Verify())
}
