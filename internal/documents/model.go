package documents

import "time"

// Canvas stores the render state of a canvas document.
type Canvas struct {
	UserID         string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	SourceID       string    `gorm:"column:source_id;primaryKey;size:190;not null"`
	VideoURL       string    `gorm:"column:video_url;size:512"`
	LatestRenderAt time.Time `gorm:"column:latest_render_at"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Canvas) TableName() string {
	return "canvases"
}

// Prompt stores the render state of a prompt document.
type Prompt struct {
	UserID         string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	SourceID       string    `gorm:"column:source_id;primaryKey;size:190;not null"`
	VideoURL       string    `gorm:"column:video_url;size:512"`
	LatestRenderAt time.Time `gorm:"column:latest_render_at"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Prompt) TableName() string {
	return "prompts"
}

// RenderRecord is the source-type-independent view of a stored document's
// render state.
type RenderRecord struct {
	UserID         string
	SourceID       string
	VideoURL       string
	LatestRenderAt time.Time
}
