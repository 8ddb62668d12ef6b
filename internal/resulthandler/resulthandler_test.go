package resulthandler

import (
	"errors"
	"testing"

	"github.com/riftdata/pgstmt/pkg/wire"
)

func TestSingleResultHandlerBuildsChain(t *testing.T) {
	h := NewSingleResultHandler()
	fields := []wire.FieldDescription{{Name: "id"}}
	_ = h.OnRows(fields, []Row{{[]byte("1")}}, nil)
	_ = h.OnCommandStatus("INSERT 0 1", 1, 42)

	chain := h.Chain()
	if chain == nil || chain.Kind != RowsEnvelope {
		t.Fatalf("expected first envelope to be RowsEnvelope, got %+v", chain)
	}
	if chain.Next == nil || chain.Next.Kind != StatusEnvelope {
		t.Fatalf("expected second envelope to be StatusEnvelope, got %+v", chain.Next)
	}
	if chain.Next.UpdateCount != 1 || chain.Next.InsertOID != 42 {
		t.Errorf("status envelope = %+v", chain.Next)
	}
}

func TestUpdateHandlerRejectsRows(t *testing.T) {
	h := NewUpdateHandler()
	_ = h.OnRows(nil, []Row{{[]byte("x")}}, nil)
	if h.Err == nil {
		t.Errorf("expected an error when rows arrive for an update-only handler")
	}
}

func TestUpdateHandlerRecordsStatus(t *testing.T) {
	h := NewUpdateHandler()
	_ = h.OnCommandStatus("UPDATE 3", 3, 0)
	if h.UpdateCount != 3 {
		t.Errorf("UpdateCount = %d, want 3", h.UpdateCount)
	}
}

func TestGeneratedKeysHandlerSplitsFirstEnvelope(t *testing.T) {
	h := NewGeneratedKeysHandler()
	_ = h.OnRows([]wire.FieldDescription{{Name: "id"}}, []Row{{[]byte("9")}}, nil)
	_ = h.OnCommandStatus("INSERT 0 1", 1, 0)

	keys, rest := h.Split()
	if keys == nil || keys.Kind != RowsEnvelope {
		t.Fatalf("expected generated-keys envelope, got %+v", keys)
	}
	if keys.Next != nil {
		t.Errorf("generated-keys envelope should be detached from the rest of the chain")
	}
	if rest == nil || rest.Kind != StatusEnvelope {
		t.Fatalf("expected remaining chain to start at the status envelope, got %+v", rest)
	}
}

func TestBatchHandlerTracksPerEntryStatus(t *testing.T) {
	h := NewBatchHandler(3)
	_ = h.OnCommandStatus("INSERT 0 1", 1, 0)
	h.AdvanceEntry()
	_ = h.OnError(errors.New("constraint violation"))
	h.AdvanceEntry()
	_ = h.OnCommandStatus("INSERT 0 1", 1, 0)

	want := []int64{1, ExecuteFailed, 1}
	for i, w := range want {
		if h.UpdateCounts[i] != w {
			t.Errorf("UpdateCounts[%d] = %d, want %d", i, h.UpdateCounts[i], w)
		}
	}
	if h.FirstFailureIndex != 1 {
		t.Errorf("FirstFailureIndex = %d, want 1", h.FirstFailureIndex)
	}
}

func TestBatchHandlerMergedGroupDefaultsToSuccessNoInfo(t *testing.T) {
	h := NewBatchHandler(4)
	h.NoteMergedGroup(0, 4)
	_ = h.OnCommandStatus("INSERT 0 4", 4, 0)

	for i := 0; i < 3; i++ {
		if h.UpdateCounts[i] != SuccessNoInfo {
			t.Errorf("UpdateCounts[%d] = %d, want SuccessNoInfo", i, h.UpdateCounts[i])
		}
	}
	if h.UpdateCounts[3] != SuccessNoInfo {
		t.Errorf("UpdateCounts[3] = %d, want SuccessNoInfo (the group's tag is not attributed to one entry)", h.UpdateCounts[3])
	}
}
