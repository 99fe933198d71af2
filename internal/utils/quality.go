package utils

import (
	"sort"

	"github.com/amaumene/harvestarr/internal/models"
)

// SelectVariant picks one encoded alternative of a video-like media entity
// according to the quality tier.
//
// Only video/mp4 candidates are ranked. When none is present the first raw
// candidate is returned unverified. Ranking is by bitrate, highest first, with
// equal bitrates keeping their input order:
//   - high: highest bitrate
//   - low: lowest bitrate
//   - medium: the element at floor(n/2) of the ranking
//   - any other tier: the first mp4 candidate in input order
//
// The second return value is false only when candidates is empty.
func SelectVariant(candidates []models.VariantCandidate, tier models.QualityTier) (models.VariantCandidate, bool) {
	if len(candidates) == 0 {
		return models.VariantCandidate{}, false
	}

	ranked := RankByBitrate(candidates)
	if len(ranked) == 0 {
		return candidates[0], true
	}

	switch tier {
	case models.QualityHigh:
		return ranked[0], true
	case models.QualityLow:
		return lowest(ranked), true
	case models.QualityMedium:
		return ranked[len(ranked)/2], true
	default:
		return firstCanonical(candidates), true
	}
}

func firstCanonical(candidates []models.VariantCandidate) models.VariantCandidate {
	for _, c := range candidates {
		if c.ContentType == models.CanonicalContentType {
			return c
		}
	}
	return candidates[0]
}

// RankByBitrate filters candidates to the canonical container and sorts them
// by bitrate, highest first. Input order is kept between equal bitrates.
func RankByBitrate(candidates []models.VariantCandidate) []models.VariantCandidate {
	ranked := make([]models.VariantCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ContentType == models.CanonicalContentType {
			ranked = append(ranked, c)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return bitrateValue(ranked[i]) > bitrateValue(ranked[j])
	})

	return ranked
}

// lowest returns the first element of the lowest-bitrate run, which is the
// earliest input among equal minima.
func lowest(ranked []models.VariantCandidate) models.VariantCandidate {
	min := bitrateValue(ranked[len(ranked)-1])
	for _, c := range ranked {
		if bitrateValue(c) == min {
			return c
		}
	}
	return ranked[len(ranked)-1]
}

// bitrateValue treats negative (corrupt) bitrates as unknown
func bitrateValue(c models.VariantCandidate) int64 {
	if c.Bitrate < 0 {
		return 0
	}
	return c.Bitrate
}

// QualityLabel is the quality recorded in history: the tier for video-like
// media, "original" for images
func QualityLabel(kind models.MediaKind, tier models.QualityTier) string {
	if !kind.IsVideoLike() || tier == "" {
		return models.QualityOriginal
	}
	return string(tier)
}
