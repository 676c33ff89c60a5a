package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/motionforge/renderline/internal/wire"
)

var (
	// ErrNotFound indicates that the document does not exist in storage.
	ErrNotFound        = errors.New("documents: not found")
	errMissingDatabase = errors.New("documents: database handle is required")
)

// Store persists per-document render state for canvases and prompts.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Store{db: db}, nil
}

// Lookup returns the stored render state for one document.
func (s *Store) Lookup(ctx context.Context, sourceType wire.SourceType, userID, sourceID string) (RenderRecord, error) {
	switch sourceType {
	case wire.SourceTypeCanvas:
		var row Canvas
		if err := s.find(ctx, &row, userID, sourceID); err != nil {
			return RenderRecord{}, err
		}
		return RenderRecord{UserID: row.UserID, SourceID: row.SourceID, VideoURL: row.VideoURL, LatestRenderAt: row.LatestRenderAt}, nil
	case wire.SourceTypePrompt:
		var row Prompt
		if err := s.find(ctx, &row, userID, sourceID); err != nil {
			return RenderRecord{}, err
		}
		return RenderRecord{UserID: row.UserID, SourceID: row.SourceID, VideoURL: row.VideoURL, LatestRenderAt: row.LatestRenderAt}, nil
	default:
		return RenderRecord{}, fmt.Errorf("%w: %q", wire.ErrUnknownSourceType, sourceType)
	}
}

func (s *Store) find(ctx context.Context, row any, userID, sourceID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND source_id = ?", userID, sourceID).
		First(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// RecordRender upserts the document's video url and render timestamp.
func (s *Store) RecordRender(ctx context.Context, sourceType wire.SourceType, userID, sourceID, videoURL string, renderedAt time.Time) error {
	assignments := clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"video_url", "latest_render_at"}),
	}
	switch sourceType {
	case wire.SourceTypeCanvas:
		row := Canvas{UserID: userID, SourceID: sourceID, VideoURL: videoURL, LatestRenderAt: renderedAt}
		return s.db.WithContext(ctx).Clauses(assignments).Create(&row).Error
	case wire.SourceTypePrompt:
		row := Prompt{UserID: userID, SourceID: sourceID, VideoURL: videoURL, LatestRenderAt: renderedAt}
		return s.db.WithContext(ctx).Clauses(assignments).Create(&row).Error
	default:
		return fmt.Errorf("%w: %q", wire.ErrUnknownSourceType, sourceType)
	}
}
