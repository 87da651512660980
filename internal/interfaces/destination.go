package interfaces

import "context"

// UploadRequest describes one video upload to the destination platform.
type UploadRequest struct {
	FilePath    string
	Title       string
	Description string
	// RefreshToken is the owning account's stored credential. A fresh
	// authenticated client is built per request; credentials are never
	// shared between accounts.
	RefreshToken string
	// OnTokenRotated is invoked when the provider issues a replacement
	// refresh token during the upload. Optional.
	OnTokenRotated func(newToken string)
}

// DestinationUploader publishes a downloaded video file to the
// destination platform under the owning account's credential.
type DestinationUploader interface {
	Upload(ctx context.Context, req UploadRequest) (videoURL string, err error)
}
