package douyin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
)

const (
	postFeedPath = "/aweme/v1/web/aweme/post/"
	feedPageSize = 10
)

// Client fetches an account's posted-video feed from the Douyin web
// API. The session cookie and user agent come from configuration; the
// feed endpoint rejects anonymous requests.
type Client struct {
	baseURL    string
	userAgent  string
	cookie     string
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewClient creates a new feed client from configuration
func NewClient(config *common.SourceConfig, logger arbor.ILogger) (interfaces.SourceClient, error) {
	timeout := 30 * time.Second
	if config.RequestTimeout != "" {
		d, err := time.ParseDuration(config.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid source request_timeout: %w", err)
		}
		timeout = d
	}

	return &Client{
		baseURL:    config.BaseURL,
		userAgent:  config.UserAgent,
		cookie:     config.Cookie,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// feedResponse mirrors the fields of the posted-video feed we consume
type feedResponse struct {
	StatusCode int        `json:"status_code"`
	AwemeList  []feedItem `json:"aweme_list"`
}

type feedItem struct {
	AwemeID    string `json:"aweme_id"`
	Desc       string `json:"desc"`
	CreateTime int64  `json:"create_time"` // Unix seconds
	IsTop      int    `json:"is_top"`
	Statistics struct {
		DiggCount int64 `json:"digg_count"`
	} `json:"statistics"`
	Video struct {
		PlayAddr struct {
			URLList []string `json:"url_list"`
		} `json:"play_addr"`
	} `json:"video"`
}

// RecentVideos fetches the account's latest feed page and maps it to
// detected videos. Pinned entries are flagged, not filtered, so the
// caller decides how to treat them.
func (c *Client) RecentVideos(ctx context.Context, accountID, secUID string) ([]models.DetectedVideo, error) {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, postFeedPath, url.Values{
		"sec_user_id": {secUID},
		"count":       {fmt.Sprintf("%d", feedPageSize)},
		"max_cursor":  {"0"},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.baseURL+"/")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed request returned status %d: %s", resp.StatusCode, string(body))
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed response: %w", err)
	}
	if feed.StatusCode != 0 {
		return nil, fmt.Errorf("feed returned status_code %d", feed.StatusCode)
	}

	videos := make([]models.DetectedVideo, 0, len(feed.AwemeList))
	for _, item := range feed.AwemeList {
		video := models.DetectedVideo{
			VideoID:     item.AwemeID,
			AccountID:   accountID,
			Title:       item.Desc,
			LikeCount:   item.Statistics.DiggCount,
			PublishedAt: time.Unix(item.CreateTime, 0),
			IsPinned:    item.IsTop != 0,
		}
		if len(item.Video.PlayAddr.URLList) > 0 {
			video.MediaURL = item.Video.PlayAddr.URLList[0]
		}
		videos = append(videos, video)
	}

	c.logger.Debug().
		Str("account_id", accountID).
		Int("videos", len(videos)).
		Msg("Fetched source feed")

	return videos, nil
}
