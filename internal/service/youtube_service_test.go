package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"careermap_backend/internal/config"
	"careermap_backend/internal/model"
)

func newYouTubeTestService(t *testing.T, handler http.HandlerFunc) *YouTubeService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewYouTubeService(context.Background(), config.YouTubeConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
	})
	if err != nil {
		t.Fatalf("NewYouTubeService: %v", err)
	}
	return svc
}

func TestSearchPlaylistsMapsResults(t *testing.T) {
	svc := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != "test-key" {
			t.Errorf("missing api key, got %q", q.Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/youtube/v3/search":
			if q.Get("q") != "golang tutorial playlist" || q.Get("type") != "playlist" {
				t.Errorf("unexpected search query %v", q)
			}
			if q.Get("videoDuration") != "" {
				t.Errorf("duration filter should only apply to videos")
			}
			w.Write([]byte(`{"items":[{"id":{"kind":"youtube#playlist","playlistId":"PL1"},
				"snippet":{"title":"Go &amp; You","description":"Learn Go","channelTitle":"Gophers",
				"thumbnails":{"default":{"url":"d.jpg"},"medium":{"url":"m.jpg"}}}}]}`))
		case "/youtube/v3/playlists":
			if q.Get("id") != "PL1" {
				t.Errorf("unexpected playlist ids %q", q.Get("id"))
			}
			w.Write([]byte(`{"items":[{"id":"PL1","contentDetails":{"itemCount":12}}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	got := svc.SearchPlaylists(context.Background(), "Golang", 2)
	if len(got) != 1 {
		t.Fatalf("expected 1 playlist, got %d", len(got))
	}
	r := got[0]
	if r.URL != "https://www.youtube.com/playlist?list=PL1" || r.Title != "Go & You" || r.Duration != "12 videos" {
		t.Fatalf("unexpected mapping %+v", r)
	}
	if r.Thumbnail != "m.jpg" || r.Author != "Gophers" || r.Source != model.SourceExternal || r.Type != model.ResourcePlaylist {
		t.Fatalf("unexpected mapping %+v", r)
	}
	if len(r.Skills) != 1 || r.Skills[0] != "golang" {
		t.Fatalf("skills should be the lowercased term, got %v", r.Skills)
	}
}

func TestSearchVideosUsesDurationFilter(t *testing.T) {
	svc := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("videoDuration") != "medium" || q.Get("type") != "video" || q.Get("q") != "docker tutorial" {
			t.Errorf("unexpected video query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":{"kind":"youtube#video","videoId":"abc"},"snippet":{"title":"Docker","thumbnails":{"default":{"url":"d.jpg"}}}}]}`))
	})

	got := svc.SearchVideos(context.Background(), "docker", 1)
	if len(got) != 1 || got[0].URL != "https://www.youtube.com/watch?v=abc" || got[0].Thumbnail != "d.jpg" {
		t.Fatalf("unexpected videos %+v", got)
	}
}

func TestSearchForbiddenReturnsEmpty(t *testing.T) {
	svc := newYouTubeTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"quotaExceeded"}}`))
	})

	if got := svc.SearchVideos(context.Background(), "go", 2); len(got) != 0 {
		t.Fatalf("expected empty result on 403, got %d", len(got))
	}
	if got := svc.SearchPlaylists(context.Background(), "go", 2); len(got) != 0 {
		t.Fatalf("expected empty result on 403, got %d", len(got))
	}
}

func TestYouTubeDisabledWithoutKey(t *testing.T) {
	svc, err := NewYouTubeService(context.Background(), config.YouTubeConfig{})
	if err != nil {
		t.Fatalf("NewYouTubeService: %v", err)
	}
	if svc.Enabled() {
		t.Fatalf("service should be disabled without api key")
	}
	if got := svc.SearchVideos(context.Background(), "go", 2); len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}
