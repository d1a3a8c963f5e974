package streaming

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"stream-service/internal/config"
	"stream-service/internal/media"
	"stream-service/internal/models"
	"stream-service/internal/token"
)

var availablePlaybackSpeeds = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 1.75, 2.0}

// Assembler builds the stream manifest for a granted session: quality
// ladder, thumbnails, access token, anti-piracy restrictions, watermark and
// player config. The manifest never trusts client input for anything.
type Assembler struct {
	origin media.Origin
	signer *token.Signer
	cfg    *config.StreamingConfig
}

func NewAssembler(origin media.Origin, signer *token.Signer, cfg *config.Config) *Assembler {
	return &Assembler{
		origin: origin,
		signer: signer,
		cfg:    &cfg.Streaming,
	}
}

// Assemble fans out to the media origin for the manifest URL, quality
// variants and thumbnails, then composes the response around the session.
func (a *Assembler) Assemble(ctx context.Context, record *models.StreamingSession) (*models.StreamManifest, error) {
	var (
		manifestURL string
		variants    []models.QualityVariant
		thumbnails  *models.ThumbnailSet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		manifestURL, err = a.origin.ManifestURL(gctx, record.VideoID)
		return err
	})
	g.Go(func() error {
		var err error
		variants, err = a.origin.QualityVariants(gctx, record.VideoID)
		return err
	})
	g.Go(func() error {
		var err error
		thumbnails, err = a.origin.Thumbnails(gctx, record.VideoID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("media origin lookup failed: %w", err)
	}

	sort.Slice(variants, func(i, j int) bool {
		return variants[i].Bandwidth > variants[j].Bandwidth
	})

	accessToken, err := a.signer.Mint(record.SessionID, record.UserID, record.VideoID, record.StartTime)
	if err != nil {
		return nil, fmt.Errorf("failed to mint access token: %w", err)
	}
	watermarkRef, err := a.signer.WatermarkRef(record.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive watermark reference: %w", err)
	}

	restrictions := models.Restrictions{
		DownloadDisabled:    true,
		SeekingDisabled:     false,
		SpeedChangeDisabled: false,
	}

	return &models.StreamManifest{
		SessionID:    record.SessionID,
		ManifestURL:  manifestURL,
		Format:       "hls",
		Duration:     record.VideoDuration,
		Qualities:    variants,
		Thumbnails:   *thumbnails,
		AccessToken:  accessToken,
		Restrictions: restrictions,
		Watermark: models.Watermark{
			Text:     watermarkRef,
			Position: "bottom-right",
			Opacity:  a.cfg.WatermarkOpacity,
		},
		Analytics: models.AnalyticsEndpoints{
			TrackingURL:  "/api/v1/streams",
			HeartbeatURL: "/api/v1/streams",
		},
		PlayerConfig: models.PlayerConfig{
			AutoPlay:        true,
			StartPosition:   record.CurrentPosition,
			CurrentQuality:  a.resolveQuality(record.Quality),
			PlaybackSpeed:   record.PlaybackSpeed,
			AvailableSpeeds: availablePlaybackSpeeds,
			// Explicitly derived from the seeking restriction; this pairing
			// is a platform convention, not a player default.
			EnableFullscreen: !restrictions.SeekingDisabled,
			Volume:           record.Volume,
		},
	}, nil
}

// resolveQuality maps the 'auto' preference to the platform's default
// mid-tier so first load does not grab the top rung.
func (a *Assembler) resolveQuality(quality string) string {
	if quality == "" || quality == "auto" {
		return a.cfg.DefaultQuality
	}
	return quality
}
