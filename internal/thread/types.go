// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thread

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/glance/internal/util"
)

// =============================================================================
// ROLE
// =============================================================================

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// =============================================================================
// IMAGE
// =============================================================================

// Image is an image payload attached to a user turn.
type Image struct {
	MediaType string `json:"mediaType" yaml:"mediaType"`
	Data      []byte `json:"data" yaml:"data"`
}

// NewImage wraps raw image bytes, sniffing the media type from content.
func NewImage(data []byte) *Image {
	mediaType := http.DetectContentType(data)
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return &Image{MediaType: mediaType, Data: data}
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL returns the image as a data: URL.
func (img *Image) DataURL() string {
	return "data:" + img.MediaType + ";base64," + img.Base64()
}

// IsImage reports whether the media type is an image type.
func (img *Image) IsImage() bool {
	return img != nil && strings.HasPrefix(img.MediaType, "image/")
}

// =============================================================================
// TURN
// =============================================================================

// Turn is one immutable message in a thread.
// Image is only set on user turns; Confidence only on assistant turns.
type Turn struct {
	Role       Role      `json:"role" yaml:"role"`
	Text       string    `json:"text" yaml:"text"`
	Image      *Image    `json:"image,omitempty" yaml:"image,omitempty"`
	Confidence *int      `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	CreatedAt  time.Time `json:"createdAt" yaml:"createdAt"`
}

// =============================================================================
// THREAD
// =============================================================================

// Thread is one continuous exchange between the user and the assistant.
type Thread struct {
	ID        string    `json:"id" yaml:"id"`
	Turns     []Turn    `json:"turns" yaml:"turns"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Title returns a one-line preview built from the first user turn.
func (t *Thread) Title() string {
	for _, turn := range t.Turns {
		if turn.Role == RoleUser {
			if turn.Text == "" && turn.Image != nil {
				return "[image]"
			}
			return util.TruncateWidth(util.SingleLine(turn.Text), 60)
		}
	}
	return "Empty thread"
}

// LastAnswer returns the text of the most recent assistant turn.
func (t *Thread) LastAnswer() (string, bool) {
	for i := len(t.Turns) - 1; i >= 0; i-- {
		if t.Turns[i].Role == RoleAssistant {
			return t.Turns[i].Text, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the thread.
func (t *Thread) Clone() Thread {
	c := *t
	c.Turns = make([]Turn, len(t.Turns))
	for i, turn := range t.Turns {
		if turn.Image != nil {
			img := *turn.Image
			img.Data = append([]byte(nil), turn.Image.Data...)
			turn.Image = &img
		}
		if turn.Confidence != nil {
			v := *turn.Confidence
			turn.Confidence = &v
		}
		c.Turns[i] = turn
	}
	return c
}
