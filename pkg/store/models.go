package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type EbookModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	Author           string
	OriginalFileName string
	OriginalFileType string
	TextPreview      string    `gorm:"type:text"`
	Status           string    `gorm:"not null"`
	StatusMessage    string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type ChapterModel struct {
	ID            string `gorm:"primaryKey"`
	EbookID       string `gorm:"not null;index;uniqueIndex:idx_chapter_position,priority:1"`
	ChapterNumber int    `gorm:"not null;uniqueIndex:idx_chapter_position,priority:2"`
	PartNumber    int    `gorm:"not null;default:1;uniqueIndex:idx_chapter_position,priority:3"`
	Title         string
	TextContent   string `gorm:"type:text;not null"`
	AudioURL      string
	AudioSeconds  float64
	AudioMeta     datatypes.JSON `gorm:"type:jsonb"`
	Status        string         `gorm:"not null;index"`
	ErrorMessage  string         `gorm:"type:text"`
	CreatedAt     time.Time      `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
}
