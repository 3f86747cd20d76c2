// Package archive keeps a local transcript of the chat messages a session
// has seen, per room, in a sqlite database.
package archive

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type Message struct {
	ID         uint   `gorm:"primaryKey"`
	RoomID     string `gorm:"not null;uniqueIndex:idx_room_message"`
	MessageID  string `gorm:"not null;uniqueIndex:idx_room_message"`
	SenderID   string
	SenderName string
	Content    string
	Timestamp  int64 `gorm:"index"`
	IsLocal    bool
	CreatedAt  int64 `gorm:"autoCreateTime"`
}

type Archive struct {
	DB *gorm.DB
}

// Open creates or migrates the database at path. ":memory:" is accepted.
func Open(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	// every connection to ":memory:" is a separate database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Message{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating archive: %w", err)
	}
	return &Archive{DB: db}, nil
}

func (a *Archive) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save stores msg under roomID and reports whether it was new.
func (a *Archive) Save(ctx context.Context, roomID string, msg chat.Message) (bool, error) {
	row := fromChat(roomID, msg)
	res := a.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("saving message %s: %w", msg.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Messages returns the latest limit messages of roomID, oldest first. A
// limit of zero or less returns all of them.
func (a *Archive) Messages(ctx context.Context, roomID string, limit int) ([]chat.Message, error) {
	var rows []Message
	q := a.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading messages of %s: %w", roomID, err)
	}

	slices.Reverse(rows)
	return lo.Map(rows, func(item Message, _ int) chat.Message {
		return item.toChat()
	}), nil
}

func (a *Archive) Rooms(ctx context.Context) ([]string, error) {
	var rooms []string
	err := a.DB.WithContext(ctx).
		Model(&Message{}).
		Distinct("room_id").
		Order("room_id").
		Pluck("room_id", &rooms).Error
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	return rooms, nil
}

// Record saves every message event of sub until the subscription ends or
// ctx is done. Repeated ids from history merges are stored once.
func (a *Archive) Record(ctx context.Context, roomID string, sub *chat.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			ev, isMsg := e.(chat.MessageReceived)
			if !isMsg {
				continue
			}
			if _, err := a.Save(ctx, roomID, ev.Message); err != nil {
				return err
			}
		}
	}
}

func fromChat(roomID string, m chat.Message) Message {
	return Message{
		RoomID:     roomID,
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		Timestamp:  m.Timestamp.UnixNano(),
		IsLocal:    m.IsLocal,
	}
}

func (m Message) toChat() chat.Message {
	return chat.Message{
		ID:         m.MessageID,
		Content:    m.Content,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Timestamp:  time.Unix(0, m.Timestamp).UTC(),
		IsLocal:    m.IsLocal,
	}
}
