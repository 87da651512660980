package models

import (
	"testing"
	"time"
)

func TestDetectedVideoNewerThan(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fingerprint := &VideoFingerprint{
		AccountID:   "acct-1",
		VideoID:     "vid-100",
		PublishedAt: base,
	}

	tests := []struct {
		name  string
		video DetectedVideo
		fp    *VideoFingerprint
		want  bool
	}{
		{
			name:  "no fingerprint",
			video: DetectedVideo{VideoID: "vid-100", PublishedAt: base},
			fp:    nil,
			want:  true,
		},
		{
			name:  "partial fingerprint treated as absent",
			video: DetectedVideo{VideoID: "vid-100", PublishedAt: base},
			fp:    &VideoFingerprint{AccountID: "acct-1", VideoID: "vid-100"},
			want:  true,
		},
		{
			name:  "new id published later",
			video: DetectedVideo{VideoID: "vid-101", PublishedAt: base.Add(time.Hour)},
			fp:    fingerprint,
			want:  true,
		},
		{
			name:  "same id is never new",
			video: DetectedVideo{VideoID: "vid-100", PublishedAt: base.Add(time.Hour)},
			fp:    fingerprint,
			want:  false,
		},
		{
			name:  "different id but older publish time",
			video: DetectedVideo{VideoID: "vid-099", PublishedAt: base.Add(-time.Hour)},
			fp:    fingerprint,
			want:  false,
		},
		{
			name:  "different id but equal publish time",
			video: DetectedVideo{VideoID: "vid-101", PublishedAt: base},
			fp:    fingerprint,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.video.NewerThan(tt.fp); got != tt.want {
				t.Errorf("NewerThan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideoFingerprintValid(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	valid := VideoFingerprint{AccountID: "a", VideoID: "v", PublishedAt: base}
	if !valid.Valid() {
		t.Error("expected complete fingerprint to be valid")
	}

	noID := VideoFingerprint{AccountID: "a", PublishedAt: base}
	if noID.Valid() {
		t.Error("expected fingerprint without video ID to be invalid")
	}

	noTime := VideoFingerprint{AccountID: "a", VideoID: "v"}
	if noTime.Valid() {
		t.Error("expected fingerprint without publish time to be invalid")
	}
}
