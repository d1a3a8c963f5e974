package media

import (
	"context"
	"fmt"

	"stream-service/internal/config"
	"stream-service/internal/models"
)

// Origin is the media-origin collaborator: it knows where the encoded
// renditions and thumbnail sprites for a video live. Token validity checking
// happens at the origin edge, not here.
type Origin interface {
	ManifestURL(ctx context.Context, videoID string) (string, error)
	QualityVariants(ctx context.Context, videoID string) ([]models.QualityVariant, error)
	Thumbnails(ctx context.Context, videoID string) (*models.ThumbnailSet, error)
}

// cdnVariant is one rung of the fixed encoding ladder every published video
// is transcoded to.
type cdnVariant struct {
	quality   string
	bandwidth int
	width     int
	height    int
}

var encodingLadder = []cdnVariant{
	{quality: "1080p", bandwidth: 5800000, width: 1920, height: 1080},
	{quality: "720p", bandwidth: 3000000, width: 1280, height: 720},
	{quality: "480p", bandwidth: 1500000, width: 854, height: 480},
	{quality: "360p", bandwidth: 800000, width: 640, height: 360},
}

// CDNOrigin serves renditions from a fixed path scheme under the configured
// CDN base URL.
type CDNOrigin struct {
	baseURL string
}

func NewCDNOrigin(cfg *config.Config) *CDNOrigin {
	return &CDNOrigin{baseURL: cfg.Streaming.CDNBaseURL}
}

func (o *CDNOrigin) ManifestURL(ctx context.Context, videoID string) (string, error) {
	return fmt.Sprintf("%s/videos/%s/master.m3u8", o.baseURL, videoID), nil
}

func (o *CDNOrigin) QualityVariants(ctx context.Context, videoID string) ([]models.QualityVariant, error) {
	variants := make([]models.QualityVariant, 0, len(encodingLadder))
	for _, rung := range encodingLadder {
		variants = append(variants, models.QualityVariant{
			Quality:   rung.quality,
			Bandwidth: rung.bandwidth,
			Width:     rung.width,
			Height:    rung.height,
			URL:       fmt.Sprintf("%s/videos/%s/%s/playlist.m3u8", o.baseURL, videoID, rung.quality),
		})
	}
	return variants, nil
}

func (o *CDNOrigin) Thumbnails(ctx context.Context, videoID string) (*models.ThumbnailSet, error) {
	return &models.ThumbnailSet{
		URL:      fmt.Sprintf("%s/videos/%s/thumbnails/sprite.jpg", o.baseURL, videoID),
		Interval: 10,
		Columns:  10,
	}, nil
}
