package model

import (
	"strings"
	"time"
)

// Photo is an uploaded image with its metadata.
//
// UserID is written once on creation and never updated. OwnerUsername is only
// populated by gallery and search listings, which join the owner for display.
type Photo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	OwnerUsername string    `json:"ownerUsername,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Tags          []string  `json:"tags"`
	ImageURL      string    `json:"imageUrl"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PhotoInput carries the user-editable attributes of a photo.
type PhotoInput struct {
	Title       string
	Description string
	Tags        []string
}

// ParseTags splits a comma-separated tag string, trimming whitespace and
// dropping empty entries. Order is preserved.
func ParseTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
