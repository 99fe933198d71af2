package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/metrics"
	"github.com/amaumene/harvestarr/internal/models"
	"github.com/amaumene/harvestarr/internal/services/twitter"
	"github.com/amaumene/harvestarr/internal/utils"
)

// PostLookup fetches one post by identifier
type PostLookup interface {
	LookupPost(ctx context.Context, postID string) (*twitter.Post, error)
}

// ResolveController turns a post URL into downloadable media items
type ResolveController struct {
	lookup      PostLookup
	defaultTier models.QualityTier
	cache       *cache.Cache
	metrics     *metrics.Metrics
	logger      *logrus.Logger
}

// NewResolveController creates a new resolve controller. Lookups are cached
// per post for ttl; a zero ttl disables caching.
func NewResolveController(lookup PostLookup, defaultTier models.QualityTier, ttl time.Duration, m *metrics.Metrics, logger *logrus.Logger) *ResolveController {
	if defaultTier == "" {
		defaultTier = models.QualityHigh
	}

	var c *cache.Cache
	if ttl > 0 {
		c = cache.New(ttl, 2*ttl)
	}

	return &ResolveController{
		lookup:      lookup,
		defaultTier: defaultTier,
		cache:       c,
		metrics:     m,
		logger:      logger,
	}
}

// Resolve extracts the post id from rawURL, looks the post up and returns one
// item per supported media entity. An empty tier uses the default tier.
// A post without media resolves to an empty list.
func (c *ResolveController) Resolve(ctx context.Context, rawURL string, tier models.QualityTier) ([]models.MediaItem, error) {
	items, err := c.resolve(ctx, rawURL, tier)
	c.metrics.ResolutionDone(err)
	return items, err
}

func (c *ResolveController) resolve(ctx context.Context, rawURL string, tier models.QualityTier) ([]models.MediaItem, error) {
	postID, ok := twitter.ExtractPostID(rawURL)
	if !ok {
		return nil, models.NewError(models.KindInvalidURL, "resolve", fmt.Errorf("no post id in %q", rawURL))
	}

	if tier == "" {
		tier = c.defaultTier
	}

	post, err := c.fetch(ctx, postID)
	if err != nil {
		c.logger.WithError(err).WithField("post_id", postID).Warn("Failed to resolve post")
		return nil, err
	}

	items := ItemsFromPost(post, tier)

	c.logger.WithFields(logrus.Fields{
		"post_id": postID,
		"author":  post.Author(),
		"items":   len(items),
		"tier":    tier,
	}).Info("Post resolved")

	return items, nil
}

// fetch returns the post for postID, from the cache when possible.
// Posts rather than items are cached so a tier change still selects anew.
func (c *ResolveController) fetch(ctx context.Context, postID string) (*twitter.Post, error) {
	if c.cache != nil {
		if cached, found := c.cache.Get(postID); found {
			c.logger.WithField("post_id", postID).Debug("Post served from cache")
			return cached.(*twitter.Post), nil
		}
	}

	post, err := c.lookup.LookupPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.SetDefault(postID, post)
	}
	return post, nil
}

// ItemsFromPost maps the media entities of a post to media items.
// Unknown entity types and video entities without variants are skipped.
func ItemsFromPost(post *twitter.Post, tier models.QualityTier) []models.MediaItem {
	items := []models.MediaItem{}

	for index, entity := range post.Media() {
		item := models.MediaItem{
			ID:           fmt.Sprintf("%s_%d", post.ID, index),
			ThumbnailURL: entity.MediaURLHTTPS,
			PostID:       post.ID,
			PostAuthor:   post.Author(),
			PostText:     post.Body(),
		}
		if entity.OriginalInfo != nil {
			w, h := entity.OriginalInfo.Width, entity.OriginalInfo.Height
			item.Width = &w
			item.Height = &h
		}

		switch entity.Type {
		case twitter.EntityPhoto:
			item.Kind = models.MediaKindImage
			item.SourceURL = entity.MediaURLHTTPS

		case twitter.EntityVideo, twitter.EntityAnimatedGIF:
			item.Kind = models.MediaKindVideo
			if entity.Type == twitter.EntityAnimatedGIF {
				item.Kind = models.MediaKindAnimatedImage
			}
			if entity.VideoInfo == nil {
				continue
			}

			chosen, ok := utils.SelectVariant(candidates(entity.VideoInfo.Variants), tier)
			if !ok {
				continue
			}
			item.SourceURL = chosen.URL
			item.Bitrate = chosen.Bitrate
			item.DurationMs = entity.VideoInfo.DurationMillis

		default:
			continue
		}

		if item.SourceURL == "" {
			continue
		}
		items = append(items, item)
	}

	return items
}

func candidates(variants []twitter.Variant) []models.VariantCandidate {
	out := make([]models.VariantCandidate, 0, len(variants))
	for _, v := range variants {
		c := models.VariantCandidate{ContentType: v.ContentType, URL: v.URL}
		if v.Bitrate != nil {
			c.Bitrate = *v.Bitrate
		}
		out = append(out, c)
	}
	return out
}
