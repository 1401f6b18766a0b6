package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seqPtr(v int64) *int64 {
	return &v
}

func seqMsg(id, conversationID string, seq int64) *CachedMessage {
	return &CachedMessage{
		ID:             id,
		ConversationID: conversationID,
		Content:        "msg " + id,
		SequenceNumber: seqPtr(seq),
		CreatedAt:      seq * 1000,
		UpdatedAt:      seq * 1000,
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate once; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestGetMessagesOrdering(t *testing.T) {
	db := testDB(t)

	// Insert out of order, with two pending rows lacking a sequence number.
	if err := db.Append(seqMsg("m3", "conv", 3)); err != nil {
		t.Fatal(err)
	}
	if err := db.Append(&CachedMessage{ID: "p1", ConversationID: "conv", Content: "pending one", Status: StatusPending}); err != nil {
		t.Fatal(err)
	}
	if err := db.Append(seqMsg("m1", "conv", 1)); err != nil {
		t.Fatal(err)
	}
	if err := db.Append(&CachedMessage{ID: "p2", ConversationID: "conv", Content: "pending two", Status: StatusPending}); err != nil {
		t.Fatal(err)
	}
	if err := db.Append(seqMsg("m2", "conv", 2)); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("conv")
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{"m1", "m2", "m3", "p1", "p2"}
	if len(msgs) != len(wantOrder) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(wantOrder))
	}
	for i, want := range wantOrder {
		if msgs[i].ID != want {
			t.Errorf("position %d: id = %q, want %q", i, msgs[i].ID, want)
		}
	}

	// Sequenced prefix strictly increasing.
	var prev int64
	for _, m := range msgs[:3] {
		if m.SequenceNumber == nil {
			t.Fatalf("message %s lost its sequence number", m.ID)
		}
		if *m.SequenceNumber <= prev {
			t.Errorf("sequence %d not strictly increasing after %d", *m.SequenceNumber, prev)
		}
		prev = *m.SequenceNumber
	}
	for _, m := range msgs[3:] {
		if m.SequenceNumber != nil {
			t.Errorf("pending message %s has sequence %d, want none", m.ID, *m.SequenceNumber)
		}
	}
}

func TestGetMessagesEmpty(t *testing.T) {
	db := testDB(t)

	msgs, err := db.GetMessages("nothing-cached")
	if err != nil {
		t.Fatalf("GetMessages on empty conversation: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
}

func TestReplaceAllEmptyIsNoOp(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceAll("conv", []*CachedMessage{seqMsg("m1", "conv", 1)}); err != nil {
		t.Fatal(err)
	}
	// An empty fetch result must not wipe the existing cache.
	if err := db.ReplaceAll("conv", nil); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages after empty replace, want 1", len(msgs))
	}
}

func TestReplaceAllSwapsSet(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceAll("conv", []*CachedMessage{seqMsg("old1", "conv", 1), seqMsg("old2", "conv", 2)}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceAll("conv", []*CachedMessage{seqMsg("new1", "conv", 1), seqMsg("new2", "conv", 2), seqMsg("new3", "conv", 3)}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for _, m := range msgs {
		if m.ID == "old1" || m.ID == "old2" {
			t.Errorf("stale message %s survived replace", m.ID)
		}
	}

	meta, err := db.GetMeta("conv")
	if err != nil {
		t.Fatal(err)
	}
	if meta == nil {
		t.Fatal("meta row missing after replace")
	}
	if meta.LatestSequence == nil || *meta.LatestSequence != 3 {
		t.Errorf("latest sequence = %v, want 3", meta.LatestSequence)
	}
	if meta.MessageCount != 3 {
		t.Errorf("message count = %d, want 3", meta.MessageCount)
	}
}

func TestReplaceAllDoesNotTouchOtherConversations(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceAll("a", []*CachedMessage{seqMsg("a1", "a", 1)}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceAll("b", []*CachedMessage{seqMsg("b1", "b", 1)}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "a1" {
		t.Errorf("conversation a disturbed by replace of b: %v", msgs)
	}
}

func TestAppendReplacesByID(t *testing.T) {
	db := testDB(t)

	m := seqMsg("m1", "conv", 1)
	if err := db.Append(m); err != nil {
		t.Fatal(err)
	}
	m.Content = "edited"
	if err := db.Append(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (append must replace by id)", len(msgs))
	}
	if msgs[0].Content != "edited" {
		t.Errorf("content = %q, want edited", msgs[0].Content)
	}
}

func TestAppendAdvancesMeta(t *testing.T) {
	db := testDB(t)

	if err := db.Append(seqMsg("m5", "conv", 5)); err != nil {
		t.Fatal(err)
	}
	if err := db.Append(seqMsg("m6", "conv", 6)); err != nil {
		t.Fatal(err)
	}

	meta, err := db.GetMeta("conv")
	if err != nil {
		t.Fatal(err)
	}
	if meta == nil {
		t.Fatal("meta row missing")
	}
	if meta.LatestSequence == nil || *meta.LatestSequence != 6 {
		t.Errorf("latest sequence = %v, want 6", meta.LatestSequence)
	}
	if meta.MessageCount != 2 {
		t.Errorf("message count = %d, want 2", meta.MessageCount)
	}
}

func TestReconcileOptimistic(t *testing.T) {
	db := testDB(t)

	pending := &CachedMessage{
		ID:             "temp-1",
		ConversationID: "conv",
		Content:        "hello",
		Status:         StatusPending,
		TempID:         "temp-1",
		ClientTempID:   "temp-1",
	}
	if err := db.Append(pending); err != nil {
		t.Fatal(err)
	}

	confirmed := seqMsg("srv-9", "conv", 4)
	confirmed.ClientTempID = "temp-1"
	if err := db.ReconcileOptimistic("temp-1", confirmed); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.GetMessages("conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want exactly 1 survivor", len(msgs))
	}
	if msgs[0].ID != "srv-9" {
		t.Errorf("surviving id = %q, want srv-9", msgs[0].ID)
	}
	for _, m := range msgs {
		if m.ID == "temp-1" {
			t.Error("optimistic row temp-1 survived reconciliation")
		}
	}
}

func TestClearConversation(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceAll("conv", []*CachedMessage{seqMsg("m1", "conv", 1)}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetRemoteSequence("conv", 1); err != nil {
		t.Fatal(err)
	}

	if err := db.ClearConversation("conv"); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.GetMessages("conv")
	if len(msgs) != 0 {
		t.Errorf("got %d messages after clear, want 0", len(msgs))
	}
	meta, err := db.GetMeta("conv")
	if err != nil {
		t.Fatal(err)
	}
	if meta != nil {
		t.Error("meta row survived clear")
	}
	state, err := db.GetSyncState("conv")
	if err != nil {
		t.Fatal(err)
	}
	if state != nil {
		t.Error("sync state row survived clear")
	}
}

func TestClearAll(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceAll("a", []*CachedMessage{seqMsg("a1", "a", 1)}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceAll("b", []*CachedMessage{seqMsg("b1", "b", 1)}); err != nil {
		t.Fatal(err)
	}

	if err := db.ClearAll(); err != nil {
		t.Fatal(err)
	}

	n, err := db.CountMessages()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("got %d messages after clear all, want 0", n)
	}
}

func TestDeleteByDateRange(t *testing.T) {
	db := testDB(t)

	// seqMsg sets created_at to seq*1000.
	batch := []*CachedMessage{
		seqMsg("m1", "conv", 1),
		seqMsg("m2", "conv", 2),
		seqMsg("m3", "conv", 3),
		seqMsg("m4", "conv", 4),
	}
	if err := db.ReplaceAll("conv", batch); err != nil {
		t.Fatal(err)
	}

	removed, err := db.DeleteByDateRange(2000, 3000)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	msgs, err := db.GetMessages("conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m4" {
		t.Errorf("survivors = %s, %s; want m1, m4", msgs[0].ID, msgs[1].ID)
	}

	// Bounds must reflect the deletion.
	state, err := db.GetSyncState("conv")
	if err != nil {
		t.Fatal(err)
	}
	if state == nil {
		t.Fatal("sync state missing")
	}
	if state.LocalMinSeq == nil || *state.LocalMinSeq != 1 {
		t.Errorf("local min = %v, want 1", state.LocalMinSeq)
	}
	if state.LocalMaxSeq == nil || *state.LocalMaxSeq != 4 {
		t.Errorf("local max = %v, want 4", state.LocalMaxSeq)
	}
	if state.MessageCount != 2 {
		t.Errorf("sequenced count = %d, want 2", state.MessageCount)
	}
}

func TestPendingMessages(t *testing.T) {
	db := testDB(t)

	if err := db.Append(seqMsg("m1", "conv", 1)); err != nil {
		t.Fatal(err)
	}
	if err := db.Append(&CachedMessage{ID: "p1", ConversationID: "conv", Status: StatusPending, CreatedAt: 100}); err != nil {
		t.Fatal(err)
	}
	if err := db.Append(&CachedMessage{ID: "p2", ConversationID: "other", Status: StatusPending, CreatedAt: 50}); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingMessages()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].ID != "p2" || pending[1].ID != "p1" {
		t.Errorf("pending order = %s, %s; want p2, p1 (oldest first)", pending[0].ID, pending[1].ID)
	}

	if err := db.MarkMessageFailed("p1"); err != nil {
		t.Fatal(err)
	}
	pending, err = db.PendingMessages()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "p2" {
		t.Errorf("after MarkMessageFailed, pending = %v", pending)
	}

	msgs, _ := db.GetMessages("conv")
	for _, m := range msgs {
		if m.ID == "p1" && m.Status != StatusFailed {
			t.Errorf("p1 status = %q, want %q", m.Status, StatusFailed)
		}
	}
}

func TestRecomputeSyncBoundsLeavesVerdict(t *testing.T) {
	db := testDB(t)

	if err := db.SetRemoteSequence("conv", 2); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSyncVerdict("conv", SyncSynced, 42); err != nil {
		t.Fatal(err)
	}

	// A new append recomputes bounds but must not flip the verdict.
	if err := db.Append(seqMsg("m1", "conv", 1)); err != nil {
		t.Fatal(err)
	}

	state, err := db.GetSyncState("conv")
	if err != nil {
		t.Fatal(err)
	}
	if state.Verdict != SyncSynced {
		t.Errorf("verdict = %s, want SYNCED (bound recompute must not revalidate)", state.Verdict)
	}
	if state.LocalMinSeq == nil || *state.LocalMinSeq != 1 {
		t.Errorf("local min = %v, want 1", state.LocalMinSeq)
	}
	if state.LocalMaxSeq == nil || *state.LocalMaxSeq != 1 {
		t.Errorf("local max = %v, want 1", state.LocalMaxSeq)
	}
}
