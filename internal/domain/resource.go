package domain

import "time"

// LocationRecord is a normalized Business Profile location, keyed by
// (account, external ID).
type LocationRecord struct {
	AccountID    string    `db:"account_id"`
	ExternalID   string    `db:"external_id"`
	Title        string    `db:"title"`
	Address      *string   `db:"address"`
	PrimaryPhone *string   `db:"primary_phone"`
	WebsiteURL   *string   `db:"website_url"`
	LastSyncedAt time.Time `db:"last_synced_at"`
}

// ReviewRecord is a normalized review. LocationExternalID references the
// owning location by its external ID; the foreign key is resolved at
// commit time because fetch order cannot guarantee the location row exists.
type ReviewRecord struct {
	AccountID          string    `db:"account_id"`
	ExternalID         string    `db:"external_id"`
	LocationExternalID string    `db:"location_external_id"`
	Reviewer           string    `db:"reviewer"`
	Rating             int       `db:"rating"`
	Comment            *string   `db:"comment"`
	ReplyText          *string   `db:"reply_text"`
	CreateTime         time.Time `db:"create_time"`
	UpdateTime         time.Time `db:"update_time"`
	LastSyncedAt       time.Time `db:"last_synced_at"`
}

// QuestionRecord is a normalized question. Answered is derived at the
// fetch boundary: true iff a top-level answer with non-empty text exists.
type QuestionRecord struct {
	AccountID          string    `db:"account_id"`
	ExternalID         string    `db:"external_id"`
	LocationExternalID string    `db:"location_external_id"`
	Author             string    `db:"author"`
	Text               string    `db:"text"`
	Answered           bool      `db:"answered"`
	AnswerText         *string   `db:"answer_text"`
	CreateTime         time.Time `db:"create_time"`
	LastSyncedAt       time.Time `db:"last_synced_at"`
}

// SyncPayload is everything one job fetched, handed to the coordinator as
// a unit.
type SyncPayload struct {
	Locations []LocationRecord
	Reviews   []ReviewRecord
	Questions []QuestionRecord
}

// CommitResult reports per-resource counts actually written.
type CommitResult struct {
	Locations int `json:"locations"`
	Reviews   int `json:"reviews"`
	Questions int `json:"questions"`
}
