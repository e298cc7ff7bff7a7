package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/huangang/teamsync/internal/config"
	"github.com/huangang/teamsync/internal/models"
)

func TestTaskTypeSnapshotSave_Constant(t *testing.T) {
	if TaskTypeSnapshotSave != "snapshot:save" {
		t.Errorf("TaskTypeSnapshotSave = %q, expected %q", TaskTypeSnapshotSave, "snapshot:save")
	}
}

func TestNewSnapshotWriter_InlineWhenRedisDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := NewSnapshotWriter(cfg, &memPersister{})

	if writer.IsAsync() {
		t.Error("writer should be inline with Redis disabled")
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestInlineSnapshotWriter_Write(t *testing.T) {
	persister := &memPersister{}
	writer := NewInlineSnapshotWriter(persister)

	if err := writer.Write(context.Background(), models.NewSnapshot()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if persister.saves() != 1 {
		t.Errorf("saves = %d, expected 1", persister.saves())
	}

	persister.saveErr = errDiskFull
	if err := writer.Write(context.Background(), models.NewSnapshot()); err == nil {
		t.Error("Write() should surface the persister error")
	}
}

func TestAsyncSnapshotQueue_IsAsync(t *testing.T) {
	queue := &AsyncSnapshotQueue{}
	if !queue.IsAsync() {
		t.Error("AsyncSnapshotQueue.IsAsync() should return true")
	}
}

func TestAsyncSnapshotQueue_SeqIsMonotonic(t *testing.T) {
	queue := &AsyncSnapshotQueue{}
	prev := queue.nextSeq()
	for i := 0; i < 1000; i++ {
		next := queue.nextSeq()
		if next <= prev {
			t.Fatalf("seq went from %d to %d", prev, next)
		}
		prev = next
	}
}

func TestSnapshotTask_JSON(t *testing.T) {
	snap := models.NewSnapshot()
	snap.Users = append(snap.Users, models.User{ID: "u1"})

	data, err := json.Marshal(SnapshotTask{Seq: 7, Snapshot: snap})
	if err != nil {
		t.Fatal(err)
	}

	var decoded SnapshotTask
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Seq != 7 || len(decoded.Snapshot.Users) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}
