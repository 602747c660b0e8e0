package service

import (
	"context"
	"errors"
	"sync"

	"careermap_backend/internal/model"
	"careermap_backend/pkg/llm"
	"careermap_backend/pkg/vectorstore"
)

type fakeLLM struct {
	mu    sync.Mutex
	calls []llm.Request
	fn    func(req llm.Request) (string, error)
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(req)
}

type fakeEmbedder struct {
	mu     sync.Mutex
	inputs []string
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, inputs...)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeIndex 模拟集合未创建时写入和检索失败
type fakeIndex struct {
	mu        sync.Mutex
	inits     int
	ready     bool
	initErr   error
	points    map[uint64]vectorstore.Point
	searchIDs []uint64
}

var errCollectionMissing = errors.New("collection not found")

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: make(map[uint64]vectorstore.Point)}
}

func (f *fakeIndex) Init(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	if f.ready {
		return nil
	}
	if f.initErr != nil {
		return f.initErr
	}
	f.ready = true
	return nil
}

func (f *fakeIndex) setInitErr(err error) {
	f.mu.Lock()
	f.initErr = err
	f.mu.Unlock()
}

func (f *fakeIndex) Upsert(_ context.Context, points []vectorstore.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return errCollectionMissing
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, limit int) ([]vectorstore.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return nil, errCollectionMissing
	}
	out := []vectorstore.Match{}
	for i, id := range f.searchIDs {
		if i >= limit {
			break
		}
		out = append(out, vectorstore.Match{ID: id, Score: 1 - float64(i)*0.1})
	}
	return out, nil
}

// fakeSearcher 每次调用返回以检索词命名的固定 url
type fakeSearcher struct {
	mu        sync.Mutex
	playlists []string
	videos    []string
	extra     []model.Resource
}

func (f *fakeSearcher) SearchPlaylists(_ context.Context, term string, n int) []model.Resource {
	f.mu.Lock()
	f.playlists = append(f.playlists, term)
	f.mu.Unlock()
	out := []model.Resource{}
	for i := 0; i < n; i++ {
		out = append(out, model.Resource{
			Title:  term + " playlist",
			URL:    "https://www.youtube.com/playlist?list=" + term + string(rune('a'+i)),
			Type:   model.ResourcePlaylist,
			Source: model.SourceExternal,
			Skills: []string{term},
		})
	}
	return append(out, f.extra...)
}

func (f *fakeSearcher) SearchVideos(_ context.Context, term string, n int) []model.Resource {
	f.mu.Lock()
	f.videos = append(f.videos, term)
	f.mu.Unlock()
	out := []model.Resource{}
	for i := 0; i < n; i++ {
		out = append(out, model.Resource{
			Title:  term + " video",
			URL:    "https://www.youtube.com/watch?v=" + term + string(rune('a'+i)),
			Type:   model.ResourceVideo,
			Source: model.SourceExternal,
			Skills: []string{term},
		})
	}
	return out
}

func (f *fakeSearcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.playlists) + len(f.videos)
}
