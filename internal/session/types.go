package session

import (
	"time"

	"github.com/ent0n29/lingocast/internal/store"
)

// StartRequest defines parameters for starting a broadcast session.
type StartRequest struct {
	// Code is optional; a fresh code is generated when empty.
	Code      string
	InputLang string
	// Replace allows an explicit Code to supersede a live session.
	Replace bool
}

// Info returns session metadata to callers.
type Info struct {
	Code           string    `json:"code"`
	InputLang      string    `json:"input_lang"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	TTLMS          int64     `json:"ttl_ms"`
}

func infoFromMeta(m store.Meta, now time.Time) Info {
	ttl := m.ExpiresAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	return Info{
		Code:           m.Code,
		InputLang:      m.InputLang,
		CreatedAt:      m.CreatedAt,
		LastActivityAt: m.LastActivityAt,
		ExpiresAt:      m.ExpiresAt,
		TTLMS:          ttl.Milliseconds(),
	}
}
