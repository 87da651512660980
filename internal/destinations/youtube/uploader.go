package youtube

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	youtube "google.golang.org/api/youtube/v3"
)

// Uploader publishes videos to YouTube via the Data API v3. Each upload
// builds its own token source from the account's refresh token so one
// account's credential never leaks into another account's upload.
type Uploader struct {
	oauthConfig   *oauth2.Config
	privacyStatus string
	categoryID    string
	logger        arbor.ILogger
}

// NewUploader creates a new YouTube uploader from configuration
func NewUploader(config *common.YouTubeConfig, logger arbor.ILogger) *Uploader {
	return &Uploader{
		oauthConfig: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{youtube.YoutubeUploadScope},
			Endpoint:     google.Endpoint,
		},
		privacyStatus: config.PrivacyStatus,
		categoryID:    config.CategoryID,
		logger:        logger,
	}
}

// AuthURL returns the OAuth consent URL. The state round-trips the
// account ID through the provider so the callback knows which account
// the credential belongs to.
func (u *Uploader) AuthURL(state string) string {
	return u.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades an authorization code for a refresh token
func (u *Uploader) ExchangeCode(ctx context.Context, code string) (string, error) {
	token, err := u.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("oauth code exchange failed: %w", err)
	}
	if token.RefreshToken == "" {
		return "", fmt.Errorf("oauth exchange returned no refresh token")
	}
	return token.RefreshToken, nil
}

// Upload inserts the video with snippet and status parts. Returns the
// public watch URL of the created video.
func (u *Uploader) Upload(ctx context.Context, req interfaces.UploadRequest) (string, error) {
	if req.RefreshToken == "" {
		return "", fmt.Errorf("upload requires a refresh token")
	}

	tokenSource := u.oauthConfig.TokenSource(ctx, &oauth2.Token{
		RefreshToken: req.RefreshToken,
	})

	service, err := youtube.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return "", fmt.Errorf("failed to create youtube service: %w", err)
	}

	file, err := os.Open(req.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to open video file: %w", err)
	}
	defer file.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			CategoryId:  u.categoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           u.privacyStatus,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video).
		Media(file).
		ProgressUpdater(func(current, total int64) {
			if total > 0 {
				u.logger.Debug().
					Str("file", req.FilePath).
					Int("percent", int(current*100/total)).
					Msg("Upload progress")
			}
		})

	result, err := call.Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok {
			return "", fmt.Errorf("youtube upload failed with status %d: %w", apiErr.Code, err)
		}
		return "", fmt.Errorf("youtube upload failed: %w", err)
	}

	// The provider may rotate the refresh token during the upload.
	// Surface the replacement so the caller can persist it.
	if req.OnTokenRotated != nil {
		if token, terr := tokenSource.Token(); terr == nil {
			if token.RefreshToken != "" && token.RefreshToken != req.RefreshToken {
				req.OnTokenRotated(token.RefreshToken)
			}
		}
	}

	url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", result.Id)

	u.logger.Info().
		Str("video_id", result.Id).
		Str("url", url).
		Msg("Video uploaded")

	return url, nil
}
