package replays

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type replayModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Organization string `gorm:"uniqueIndex:idx_replay_org;not null"`
	ReplayID     string `gorm:"uniqueIndex:idx_replay_org;not null"`
	CreatedAt    time.Time
}

func (replayModel) TableName() string { return "replays" }

type issueReplayEventModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Organization string `gorm:"index:idx_issue_replay;not null"`
	IssueID      int64  `gorm:"index:idx_issue_replay;not null"`
	ReplayID     string `gorm:"not null"`
	CreatedAt    time.Time
}

func (issueReplayEventModel) TableName() string { return "issue_replay_events" }

// GormStore counts replays with a join of issue_replay_events against
// replays.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&replayModel{}, &issueReplayEventModel{})
}

// AddReplay records a stored replay.
func (s *GormStore) AddReplay(ctx context.Context, organization, replayID string) error {
	id, ok := NormalizeReplayID(replayID)
	if !ok {
		return fmt.Errorf("replay id %q is not a uuid", replayID)
	}
	return s.db.WithContext(ctx).Create(&replayModel{Organization: organization, ReplayID: id}).Error
}

// LinkEvent records that an event of issueID carried replayID.
func (s *GormStore) LinkEvent(ctx context.Context, organization string, issueID int64, replayID string) error {
	id, ok := NormalizeReplayID(replayID)
	if !ok {
		return fmt.Errorf("replay id %q is not a uuid", replayID)
	}
	return s.db.WithContext(ctx).Create(&issueReplayEventModel{
		Organization: organization,
		IssueID:      issueID,
		ReplayID:     id,
	}).Error
}

type issueCountRow struct {
	IssueID     int64
	ReplayCount int
}

func (s *GormStore) CountReplays(ctx context.Context, organization string, issueIDs []int64, limit int) (map[int64]int, error) {
	if len(issueIDs) == 0 {
		return map[int64]int{}, nil
	}

	var rows []issueCountRow
	err := s.db.WithContext(ctx).
		Table("issue_replay_events AS e").
		Select("e.issue_id AS issue_id, COUNT(DISTINCT e.replay_id) AS replay_count").
		Joins("JOIN replays AS r ON r.replay_id = e.replay_id AND r.organization = e.organization").
		Where("e.organization = ?", organization).
		Where("e.issue_id IN ?", issueIDs).
		Group("e.issue_id").
		Scan(&rows).
		Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("count replays: %w", err)
	}

	out := make(map[int64]int, len(rows))
	for _, row := range rows {
		if row.ReplayCount > 0 {
			out[row.IssueID] = capCount(row.ReplayCount, limit)
		}
	}
	return out, nil
}
