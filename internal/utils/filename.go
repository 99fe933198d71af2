package utils

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/amaumene/harvestarr/internal/models"
)

// FileNameParams carries what goes into a generated file name
type FileNameParams struct {
	Item  models.MediaItem
	Tier  models.QualityTier
	Index int // position in the batch, keeps names unique within one batch
	At    time.Time
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)

// GenerateFileName builds <author|twitter>_<postId>_<timestampMs>_<index>[_<tier>].<ext>.
// The tier suffix is only added for video-like media.
func GenerateFileName(p FileNameParams) string {
	prefix := SanitizeName(p.Item.PostAuthor)
	if prefix == "" {
		prefix = "twitter"
	}

	var b strings.Builder
	b.WriteString(prefix)
	if post := SanitizeName(p.Item.PostID); post != "" {
		b.WriteString("_")
		b.WriteString(post)
	}
	b.WriteString(fmt.Sprintf("_%d_%d", p.At.UnixMilli(), p.Index))
	if p.Item.Kind.IsVideoLike() && p.Tier != "" {
		b.WriteString("_")
		b.WriteString(string(p.Tier))
	}
	b.WriteString(".")
	b.WriteString(Extension(p.Item))

	return b.String()
}

// Extension returns the file extension for an item, without the dot.
// Images keep the extension of their URL when it has one.
func Extension(item models.MediaItem) string {
	if item.Kind.IsVideoLike() {
		return "mp4"
	}

	if u, err := url.Parse(item.SourceURL); err == nil {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
		switch ext {
		case "jpg", "jpeg", "png", "gif", "webp":
			return ext
		}
	}
	return "jpg"
}

// SanitizeName folds accents and drops characters unsafe in file names
func SanitizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = unsafeChars.ReplaceAllString(folded, "_")
	return strings.Trim(folded, "_")
}

// KindDirectory returns the per-kind subdirectory used under the save location
func KindDirectory(base string, kind models.MediaKind) string {
	switch kind {
	case models.MediaKindVideo:
		return filepath.Join(base, "Videos")
	case models.MediaKindAnimatedImage:
		return filepath.Join(base, "GIFs")
	default:
		return filepath.Join(base, "Images")
	}
}
