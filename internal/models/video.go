package models

import "time"

// VideoFingerprint is the per-account marker of the most recent video
// already processed. Novelty detection compares against this record.
type VideoFingerprint struct {
	AccountID   string    `json:"account_id" badgerhold:"key"`
	VideoID     string    `json:"video_id"`
	PublishedAt time.Time `json:"published_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Valid reports whether the fingerprint carries enough data to compare
// against. Partial records (e.g. from an interrupted write) are treated
// as absent by the detector.
func (f *VideoFingerprint) Valid() bool {
	return f.VideoID != "" && !f.PublishedAt.IsZero()
}

// DetectedVideo is a video observed on the source platform feed.
type DetectedVideo struct {
	VideoID     string    `json:"video_id"`
	AccountID   string    `json:"account_id"`
	Title       string    `json:"title"`
	MediaURL    string    `json:"media_url"`
	LikeCount   int64     `json:"like_count"`
	PublishedAt time.Time `json:"published_at"`
	IsPinned    bool      `json:"is_pinned"`
}

// NewerThan applies the novelty rule: a candidate is new when there is
// no usable fingerprint, or when its ID differs AND it was published
// strictly later. Re-published or edited videos with the same ID never
// trigger a second pipeline run.
func (v *DetectedVideo) NewerThan(fp *VideoFingerprint) bool {
	if fp == nil || !fp.Valid() {
		return true
	}
	return v.VideoID != fp.VideoID && v.PublishedAt.After(fp.PublishedAt)
}
