package twitter

import (
	"encoding/json"
	"fmt"
)

// Post represents the statuses/show lookup response. Only the fields the
// resolver reads are mapped; optional fields are pointers or zero values.
type Post struct {
	ID               string            `json:"id_str"`
	FullText         string            `json:"full_text"`
	Text             string            `json:"text"`
	User             *User             `json:"user"`
	ExtendedEntities *ExtendedEntities `json:"extended_entities"`
}

// User represents the post author
type User struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

// ExtendedEntities holds the attached media entities
type ExtendedEntities struct {
	Media []MediaEntity `json:"media"`
}

// Media entity types
const (
	EntityPhoto       = "photo"
	EntityVideo       = "video"
	EntityAnimatedGIF = "animated_gif"
)

// MediaEntity represents one attached media entity
type MediaEntity struct {
	ID            string        `json:"id_str"`
	Type          string        `json:"type"`
	MediaURLHTTPS string        `json:"media_url_https"`
	OriginalInfo  *OriginalInfo `json:"original_info"`
	VideoInfo     *VideoInfo    `json:"video_info"`
}

// OriginalInfo carries the source dimensions
type OriginalInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// VideoInfo carries the encoded alternatives of a video-like entity
type VideoInfo struct {
	DurationMillis *int64    `json:"duration_millis"`
	Variants       []Variant `json:"variants"`
}

// Variant represents one encoded alternative
type Variant struct {
	ContentType string `json:"content_type"`
	Bitrate     *int64 `json:"bitrate"` // absent for playlists
	URL         string `json:"url"`
}

// Author returns the screen name, falling back to the display name
func (p *Post) Author() string {
	if p.User == nil {
		return ""
	}
	if p.User.ScreenName != "" {
		return p.User.ScreenName
	}
	return p.User.Name
}

// Body returns the post text, preferring the extended form
func (p *Post) Body() string {
	if p.FullText != "" {
		return p.FullText
	}
	return p.Text
}

// Media returns the attached media entities, or nil when there are none
func (p *Post) Media() []MediaEntity {
	if p.ExtendedEntities == nil {
		return nil
	}
	return p.ExtendedEntities.Media
}

// DecodePost parses a lookup response body
func DecodePost(body []byte) (*Post, error) {
	var post Post
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, fmt.Errorf("failed to decode post: %w", err)
	}
	if post.ID == "" {
		return nil, fmt.Errorf("post has no id_str")
	}
	return &post, nil
}
