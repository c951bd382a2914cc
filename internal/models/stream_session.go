package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamStatus is the persisted status of a live stream record.
type StreamStatus string

const (
	StreamStatusLive  StreamStatus = "live"
	StreamStatusEnded StreamStatus = "ended"
)

// PrivacyMode controls who can discover a live stream.
type PrivacyMode string

const (
	PrivacyPublic   PrivacyMode = "public"
	PrivacyUnlisted PrivacyMode = "unlisted"
	PrivacyPrivate  PrivacyMode = "private"
)

// Valid reports whether p is one of the known privacy modes.
func (p PrivacyMode) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyUnlisted, PrivacyPrivate:
		return true
	}
	return false
}

// StreamSession is one continuous live broadcast owned by one broadcaster.
// Title, description, category, privacy and the chat/tips flags never change after creation.
type StreamSession struct {
	ID                uuid.UUID      `json:"id"`
	BroadcasterID     uuid.UUID      `json:"broadcaster_id"`
	BroadcasterName   string         `json:"broadcaster_name"`
	BroadcasterAvatar string         `json:"broadcaster_avatar,omitempty"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Category          string         `json:"category"`
	Privacy           PrivacyMode    `json:"privacy"`
	ChatEnabled       bool           `json:"chat_enabled"`
	TipsEnabled       bool           `json:"tips_enabled"`
	ThumbnailURL      string         `json:"thumbnail_url,omitempty"`
	Status            StreamStatus   `json:"status"`
	ViewerCount       int            `json:"viewer_count"`
	Duration          string         `json:"duration"`
	StartedAt         time.Time      `json:"started_at"`
	EndedAt           *time.Time     `json:"ended_at,omitempty"`
	Summary           *StreamSummary `json:"summary,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// StreamSummary is computed once when a stream ends.
type StreamSummary struct {
	AverageViewers   int    `json:"avg_viewers"`
	TotalViewers     int    `json:"total_viewers"` // distinct users who ever joined
	ChatMessageCount int    `json:"chat_count"`
	Duration         string `json:"duration"` // HH:MM:SS
	TotalTips        string `json:"total_tips"`
}
