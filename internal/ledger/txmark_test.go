package ledger

import (
	"bytes"
	"testing"
)

func mustSeen(t *testing.T, l *Ledger, hash [32]byte) bool {
	t.Helper()

	ok, err := l.Seen(hash)
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}

	return ok
}

func TestTxKey(t *testing.T) {
	key := TxKey([32]byte{0xab})

	if !bytes.HasPrefix(key, []byte("t:")) || len(key) != 34 || key[2] != 0xab {
		t.Errorf("TxKey = %x", key)
	}
}

func TestContribute_CommitsMark(t *testing.T) {
	l, _ := newInitializedLedger(t)
	user := registerUser(t, l)

	mark := TxMark{Hash: [32]byte{1}, At: testNow.UnixNano()}

	if _, err := l.Contribute(user, 1, 0, mark); err != nil {
		t.Fatalf("Contribute failed: %v", err)
	}

	if !mustSeen(t, l, mark.Hash) {
		t.Error("mark missing after committed contribution")
	}
}

func TestRejectedOperationLeavesNoMark(t *testing.T) {
	l, _ := newInitializedLedger(t)
	user := registerUser(t, l)

	mark := TxMark{Hash: [32]byte{2}, At: testNow.UnixNano()}

	_, err := l.Claim(user, 2, mark)
	expectErr(t, err, ErrInsufficientBalance)

	if mustSeen(t, l, mark.Hash) {
		t.Error("rejected claim committed its mark")
	}

	if err := l.Mark(mark); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	if !mustSeen(t, l, mark.Hash) {
		t.Error("standalone mark not stored")
	}
}

func TestPruneMarks(t *testing.T) {
	l, _ := newInitializedLedger(t)

	old := TxMark{Hash: [32]byte{3}, At: 100}
	edge := TxMark{Hash: [32]byte{4}, At: 200}
	fresh := TxMark{Hash: [32]byte{5}, At: 300}

	for _, m := range []TxMark{old, edge, fresh} {
		if err := l.Mark(m); err != nil {
			t.Fatalf("Mark failed: %v", err)
		}
	}

	n, err := l.PruneMarks(200)
	if err != nil {
		t.Fatalf("PruneMarks failed: %v", err)
	}

	if n != 1 {
		t.Errorf("pruned %d marks, want 1", n)
	}

	if mustSeen(t, l, old.Hash) {
		t.Error("old mark survived pruning")
	}

	if !mustSeen(t, l, edge.Hash) || !mustSeen(t, l, fresh.Hash) {
		t.Error("pruning removed a mark at or after the cutoff")
	}

	// Records share the store but not the prefix.
	if _, err := l.Aggregate(); err != nil {
		t.Errorf("aggregate lost after pruning: %v", err)
	}
}
