package common

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// unsafeFilenameChars matches whitespace and characters that are not
// portable in file names across platforms.
var unsafeFilenameChars = regexp.MustCompile(`[\r\n\s\\/:'"*?<>|]+`)

const maxTitleLength = 50

// SanitizeTitle converts a video title into a filesystem-safe fragment.
// Runs of unsafe characters collapse into a single underscore and the
// result is truncated to 50 characters.
func SanitizeTitle(title string) string {
	safe := unsafeFilenameChars.ReplaceAllString(title, "_")
	runes := []rune(safe)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength])
	}
	return safe
}

// DownloadFilePath computes the deterministic path for a downloaded
// video: <downloads>/<accountID>/<videoID>#<title>#<likes>.mp4. The
// same video always maps to the same path, so a crashed download run
// can detect already-completed work.
func DownloadFilePath(downloadsDir, accountID, videoID, title string, likeCount int64) string {
	name := fmt.Sprintf("%s#%s#%d.mp4", videoID, SanitizeTitle(title), likeCount)
	return filepath.Join(downloadsDir, accountID, name)
}
