package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/room/memory"
	"gorm.io/gorm"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func openArchive(t *testing.T) *Archive {
	t.Helper()

	a, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func msg(id string, offset time.Duration) chat.Message {
	return chat.Message{
		ID:         id,
		Content:    "content " + id,
		SenderID:   "peer-a",
		SenderName: "alice",
		Timestamp:  base.Add(offset),
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()

	inserted, err := a.Save(ctx, "room", msg("m1", 0))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !inserted {
		t.Error("Expected first save to insert")
	}

	inserted, err = a.Save(ctx, "room", msg("m1", 0))
	if err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if inserted {
		t.Error("Expected duplicate save to be ignored")
	}

	inserted, _ = a.Save(ctx, "other-room", msg("m1", 0))
	if !inserted {
		t.Error("Expected same id in another room to insert")
	}
}

func TestMessagesOrderedAndLimited(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()

	for _, m := range []chat.Message{msg("m3", 3*time.Second), msg("m1", time.Second), msg("m2", 2*time.Second)} {
		if _, err := a.Save(ctx, "room", m); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	all, err := a.Messages(ctx, "room", 0)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "m1" || all[2].ID != "m3" {
		t.Fatalf("Unexpected order: %+v", all)
	}
	if !all[0].Timestamp.Equal(base.Add(time.Second)) {
		t.Errorf("Timestamp mismatch: %v", all[0].Timestamp)
	}
	if all[0].SenderName != "alice" {
		t.Errorf("Expected alice, got %s", all[0].SenderName)
	}

	latest, err := a.Messages(ctx, "room", 2)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != "m2" || latest[1].ID != "m3" {
		t.Errorf("Expected [m2 m3], got %+v", latest)
	}
}

func TestRooms(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()

	a.Save(ctx, "beta", msg("m1", 0))
	a.Save(ctx, "alpha", msg("m2", 0))
	a.Save(ctx, "beta", msg("m3", 0))

	rooms, err := a.Rooms(ctx)
	if err != nil {
		t.Fatalf("Rooms failed: %v", err)
	}
	if len(rooms) != 2 || rooms[0] != "alpha" || rooms[1] != "beta" {
		t.Errorf("Expected [alpha beta], got %v", rooms)
	}
}

func TestRecordSessionMessages(t *testing.T) {
	a := openArchive(t)
	network := memory.NewNetwork()

	session, err := chat.NewSession(
		chat.Config{AppID: "app", RoomID: "123456", UserName: "alice"},
		chat.Options{Transport: network.Transport("a"), Logger: logger.Discard()},
	)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	done := make(chan error, 1)
	sub := session.Subscribe()
	go func() { done <- a.Record(context.Background(), "123456", sub) }()

	ctx := context.Background()
	if err := session.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := session.SendMessage(ctx, "one"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, err := session.SendMessage(ctx, "two"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Record did not stop after session close")
	}

	stored, err := a.Messages(ctx, "123456", 0)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(stored) != 2 || stored[0].Content != "one" || !stored[0].IsLocal {
		t.Errorf("Unexpected transcript: %+v", stored)
	}
}

func TestOpenFailsOnForeignSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.sqlite3")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open failed: %v", err)
	}
	if err := db.Exec("CREATE VIEW messages AS SELECT 1 AS x").Error; err != nil {
		t.Fatalf("creating view failed: %v", err)
	}
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Expected Open to fail when messages is not a table")
	}

	// a failed Open leaves the file usable for repair
	db, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open failed: %v", err)
	}
	if err := db.Exec("DROP VIEW messages").Error; err != nil {
		t.Fatalf("dropping view failed: %v", err)
	}
	sqlDB, _ = db.DB()
	_ = sqlDB.Close()

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open after repair failed: %v", err)
	}
	_ = a.Close()
}
