package storage

import (
	"context"
	"path/filepath"
	"testing"

	"shopmon/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteBlobRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if data, err := store.Load(ctx, KeyProducts); err != nil || data != nil {
		t.Fatalf("expected nil, nil for missing key, got %v, %v", data, err)
	}

	blob := []byte(`[{"id":"x"}]`)
	if err := store.Save(ctx, KeyProducts, blob); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := store.Load(ctx, KeyProducts)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != string(blob) {
		t.Fatalf("round trip mismatch: %s", data)
	}

	updated := []byte(`[]`)
	if err := store.Save(ctx, KeyProducts, updated); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err = store.Load(ctx, KeyProducts)
	if err != nil {
		t.Fatalf("load after overwrite: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("expected overwritten blob, got %s", data)
	}
}

func TestSQLiteKeysIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, KeyProducts, []byte("a")); err != nil {
		t.Fatalf("save products: %v", err)
	}
	if err := store.Save(ctx, KeyLogs, []byte("b")); err != nil {
		t.Fatalf("save logs: %v", err)
	}

	products, _ := store.Load(ctx, KeyProducts)
	logs, _ := store.Load(ctx, KeyLogs)
	if string(products) != "a" || string(logs) != "b" {
		t.Fatalf("keys bled into each other: %s / %s", products, logs)
	}
}

func TestCommandQueue(t *testing.T) {
	store := newTestStore(t)

	if err := store.EnqueueCommand(models.CmdCheckProduct, &models.CommandParams{ProductID: "p1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.EnqueueCommand(models.CmdStopAll, nil); err != nil {
		t.Fatalf("enqueue without params: %v", err)
	}

	cmds, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 pending commands, got %d", len(cmds))
	}
	if cmds[0].Command != models.CmdCheckProduct {
		t.Fatalf("unexpected order: %s first", cmds[0].Command)
	}

	params, err := store.ParseCommandParams(&cmds[0])
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	if params.ProductID != "p1" {
		t.Fatalf("unexpected params %+v", params)
	}

	if err := store.MarkCommandProcessed(cmds[0].ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	cmds, err = store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending after mark: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Command != models.CmdStopAll {
		t.Fatalf("expected only stop_all pending, got %+v", cmds)
	}
}
