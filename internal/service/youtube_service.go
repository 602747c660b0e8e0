package service

import (
	"careermap_backend/internal/config"
	"careermap_backend/internal/model"
	"careermap_backend/pkg/logger"
	"careermap_backend/pkg/monitoring"
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// VideoSearcher 外部视频平台检索，失败时返回空结果而不是错误
type VideoSearcher interface {
	SearchPlaylists(ctx context.Context, term string, n int) []model.Resource
	SearchVideos(ctx context.Context, term string, n int) []model.Resource
}

type YouTubeService struct {
	svc     *youtube.Service
	timeout time.Duration
}

const descriptionLimit = 200

// NewYouTubeService 未配置 API key 时返回的实例不会发起任何请求
func NewYouTubeService(ctx context.Context, cfg config.YouTubeConfig) (*YouTubeService, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &YouTubeService{timeout: timeout}
	if cfg.APIKey == "" {
		logger.Log.Warn("YouTube API key not configured, external resource lookup disabled")
		return s, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube client: %w", err)
	}
	s.svc = svc
	return s, nil
}

func (s *YouTubeService) Enabled() bool {
	return s != nil && s.svc != nil
}

func (s *YouTubeService) SearchPlaylists(ctx context.Context, term string, n int) []model.Resource {
	if !s.Enabled() || strings.TrimSpace(term) == "" || n <= 0 {
		return []model.Resource{}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.svc.Search.List([]string{"snippet"}).
		Q(term + " tutorial playlist").
		Type("playlist").
		Order("relevance").
		MaxResults(int64(n)).
		Context(ctx).
		Do()
	if err != nil {
		s.logError("playlists", term, err)
		return []model.Resource{}
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.PlaylistId != "" {
			ids = append(ids, item.Id.PlaylistId)
		}
	}
	counts := s.playlistItemCounts(ctx, ids)

	out := make([]model.Resource, 0, len(ids))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.PlaylistId == "" || item.Snippet == nil {
			continue
		}
		duration := "Playlist"
		if c, ok := counts[item.Id.PlaylistId]; ok {
			duration = fmt.Sprintf("%d videos", c)
		}
		res := toResource(item.Snippet, term)
		res.URL = "https://www.youtube.com/playlist?list=" + item.Id.PlaylistId
		res.Type = model.ResourcePlaylist
		res.Duration = duration
		out = append(out, res)
	}
	monitoring.ExternalLookups.WithLabelValues("ok").Inc()
	return out
}

func (s *YouTubeService) SearchVideos(ctx context.Context, term string, n int) []model.Resource {
	if !s.Enabled() || strings.TrimSpace(term) == "" || n <= 0 {
		return []model.Resource{}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.svc.Search.List([]string{"snippet"}).
		Q(term + " tutorial").
		Type("video").
		Order("relevance").
		VideoDuration("medium").
		MaxResults(int64(n)).
		Context(ctx).
		Do()
	if err != nil {
		s.logError("videos", term, err)
		return []model.Resource{}
	}

	out := make([]model.Resource, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		res := toResource(item.Snippet, term)
		res.URL = "https://www.youtube.com/watch?v=" + item.Id.VideoId
		res.Type = model.ResourceVideo
		res.Duration = "Video"
		out = append(out, res)
	}
	monitoring.ExternalLookups.WithLabelValues("ok").Inc()
	return out
}

// playlistItemCounts 获取播放列表视频数，失败时返回空 map
func (s *YouTubeService) playlistItemCounts(ctx context.Context, ids []string) map[string]int64 {
	counts := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return counts
	}
	resp, err := s.svc.Playlists.List([]string{"contentDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		logger.Log.Debug("YouTube playlist details failed", zap.Error(err))
		return counts
	}
	for _, pl := range resp.Items {
		if pl.ContentDetails != nil {
			counts[pl.Id] = pl.ContentDetails.ItemCount
		}
	}
	return counts
}

func (s *YouTubeService) logError(kind, term string, err error) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusForbidden {
		monitoring.ExternalLookups.WithLabelValues("forbidden").Inc()
		logger.Log.Warn("YouTube API quota exceeded or key invalid",
			zap.String("kind", kind), zap.String("term", term))
		return
	}
	monitoring.ExternalLookups.WithLabelValues("error").Inc()
	logger.Log.Error("YouTube search failed",
		zap.String("kind", kind), zap.String("term", term), zap.Error(err))
}

func toResource(sn *youtube.SearchResultSnippet, term string) model.Resource {
	thumb := ""
	if sn.Thumbnails != nil {
		switch {
		case sn.Thumbnails.Medium != nil:
			thumb = sn.Thumbnails.Medium.Url
		case sn.Thumbnails.Default != nil:
			thumb = sn.Thumbnails.Default.Url
		}
	}
	return model.Resource{
		Title:       html.UnescapeString(sn.Title),
		Description: truncateRunes(html.UnescapeString(sn.Description), descriptionLimit),
		Difficulty:  model.DifficultyIntermediate,
		Thumbnail:   thumb,
		Author:      sn.ChannelTitle,
		Rating:      model.DefaultRating,
		Skills:      []string{strings.ToLower(strings.TrimSpace(term))},
		Source:      model.SourceExternal,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
