package portfolio

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/portfolium/internal/metrics"
	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/repository"
	"github.com/hitoshi/portfolium/internal/security"
)

// --- インメモリのリポジトリ ---

// memStore はサブドメイン名前空間を含む永続化層をメモリ上で再現する。
type memStore struct {
	mu          sync.Mutex
	portfolios  map[string]*model.Portfolio
	claims      map[string]string // name -> portfolio id
	experiences []*model.Experience
	projects    []*model.Project
	blogs       []*model.Blog

	// 障害注入用
	createErr error
	claimErr  error
}

func newMemStore() *memStore {
	return &memStore{
		portfolios: map[string]*model.Portfolio{},
		claims:     map[string]string{},
	}
}

func clonePortfolio(p *model.Portfolio) *model.Portfolio {
	c := *p
	c.Contact.SocialLinks = slices.Clone(p.Contact.SocialLinks)
	c.SEOKeywords = slices.Clone(p.SEOKeywords)
	return &c
}

type memPortfolioRepo struct{ st *memStore }

func (r *memPortfolioRepo) FindByID(_ context.Context, id string) (*model.Portfolio, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if p, ok := r.st.portfolios[id]; ok {
		return clonePortfolio(p), nil
	}
	return nil, nil
}

func (r *memPortfolioRepo) FindByAccountID(_ context.Context, accountID string) (*model.Portfolio, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, p := range r.st.portfolios {
		if p.AccountID == accountID {
			return clonePortfolio(p), nil
		}
	}
	return nil, nil
}

func (r *memPortfolioRepo) FindPublishedBySubdomain(_ context.Context, name string) (*model.Portfolio, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, p := range r.st.portfolios {
		if p.IsPublished && (p.Subdomain == name || p.CustomSubdomain == name) {
			return clonePortfolio(p), nil
		}
	}
	return nil, nil
}

func (r *memPortfolioRepo) CreateWithSubdomain(_ context.Context, p *model.Portfolio, candidates []string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.createErr != nil {
		return r.st.createErr
	}
	for _, name := range candidates {
		if _, taken := r.st.claims[name]; taken {
			continue
		}
		r.st.claims[name] = p.ID
		p.Subdomain = name
		r.st.portfolios[p.ID] = clonePortfolio(p)
		return nil
	}
	return repository.ErrSubdomainExhausted
}

func (r *memPortfolioRepo) UpdateContent(_ context.Context, p *model.Portfolio) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	cur := r.st.portfolios[p.ID]
	photoID := cur.Personal.ProfilePhotoID
	cur.Personal = p.Personal
	cur.Personal.ProfilePhotoID = photoID
	cur.Settings = p.Settings
	cur.Contact = p.Contact
	cur.SEOKeywords = p.SEOKeywords
	cur.UpdatedAt = p.UpdatedAt
	return nil
}

func (r *memPortfolioRepo) UpdateSettings(_ context.Context, portfolioID string, settings model.Settings) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.portfolios[portfolioID].Settings = settings
	return nil
}

func (r *memPortfolioRepo) UpdateResume(_ context.Context, portfolioID string, resume model.Resume) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.portfolios[portfolioID].Resume = resume
	return nil
}

func (r *memPortfolioRepo) SetPublication(_ context.Context, accountID string, publishedAt *time.Time) (*model.Portfolio, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, p := range r.st.portfolios {
		if p.AccountID == accountID {
			p.IsPublished = publishedAt != nil
			p.PublishedAt = publishedAt
			return clonePortfolio(p), nil
		}
	}
	return nil, nil
}

func (r *memPortfolioRepo) ClaimCustomSubdomain(_ context.Context, portfolioID, name string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.claimErr != nil {
		return r.st.claimErr
	}
	p := r.st.portfolios[portfolioID]
	if p.CustomSubdomain == name {
		return nil
	}
	if _, taken := r.st.claims[name]; taken {
		return &repository.ConflictError{Constraint: "subdomain_claims_pkey"}
	}
	delete(r.st.claims, p.CustomSubdomain)
	r.st.claims[name] = portfolioID
	p.CustomSubdomain = name
	return nil
}

func (r *memPortfolioRepo) ReleaseCustomSubdomain(_ context.Context, portfolioID string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p := r.st.portfolios[portfolioID]
	delete(r.st.claims, p.CustomSubdomain)
	p.CustomSubdomain = ""
	return nil
}

func (r *memPortfolioRepo) ListBlobKeys(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

type memExperienceRepo struct{ st *memStore }

func (r *memExperienceRepo) FindByID(_ context.Context, id string) (*model.Experience, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, e := range r.st.experiences {
		if e.ID == id {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memExperienceRepo) ListByPortfolioID(_ context.Context, portfolioID string) ([]*model.Experience, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := []*model.Experience{}
	for _, e := range r.st.experiences {
		if e.PortfolioID == portfolioID {
			out = append(out, e)
		}
	}
	// 挿入順を保った安定ソート
	slices.SortStableFunc(out, func(a, b *model.Experience) int { return a.Order - b.Order })
	return out, nil
}

func (r *memExperienceRepo) Create(_ context.Context, e *model.Experience) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c := *e
	r.st.experiences = append(r.st.experiences, &c)
	return nil
}

func (r *memExperienceRepo) Update(_ context.Context, e *model.Experience) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for i, cur := range r.st.experiences {
		if cur.ID == e.ID && cur.PortfolioID == e.PortfolioID {
			c := *e
			r.st.experiences[i] = &c
			return true, nil
		}
	}
	return false, nil
}

func (r *memExperienceRepo) Delete(_ context.Context, id, portfolioID string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n := len(r.st.experiences)
	r.st.experiences = slices.DeleteFunc(r.st.experiences, func(e *model.Experience) bool {
		return e.ID == id && e.PortfolioID == portfolioID
	})
	return len(r.st.experiences) < n, nil
}

type memProjectRepo struct{ st *memStore }

func (r *memProjectRepo) FindByID(_ context.Context, id string) (*model.Project, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, p := range r.st.projects {
		if p.ID == id {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memProjectRepo) ListByPortfolioID(_ context.Context, portfolioID string) ([]*model.Project, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := []*model.Project{}
	for _, p := range r.st.projects {
		if p.PortfolioID == portfolioID {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b *model.Project) int { return a.Order - b.Order })
	return out, nil
}

func (r *memProjectRepo) Create(_ context.Context, p *model.Project) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c := *p
	r.st.projects = append(r.st.projects, &c)
	return nil
}

func (r *memProjectRepo) Update(_ context.Context, p *model.Project) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for i, cur := range r.st.projects {
		if cur.ID == p.ID && cur.PortfolioID == p.PortfolioID {
			c := *p
			r.st.projects[i] = &c
			return true, nil
		}
	}
	return false, nil
}

func (r *memProjectRepo) UpdateImage(_ context.Context, id, portfolioID, imageID, imageURL string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, cur := range r.st.projects {
		if cur.ID == id && cur.PortfolioID == portfolioID {
			cur.ImageID, cur.ImageURL = imageID, imageURL
			return true, nil
		}
	}
	return false, nil
}

func (r *memProjectRepo) Delete(_ context.Context, id, portfolioID string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n := len(r.st.projects)
	r.st.projects = slices.DeleteFunc(r.st.projects, func(p *model.Project) bool {
		return p.ID == id && p.PortfolioID == portfolioID
	})
	return len(r.st.projects) < n, nil
}

type memBlogRepo struct{ st *memStore }

func (r *memBlogRepo) FindByBlogID(_ context.Context, blogID string) (*model.Blog, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, b := range r.st.blogs {
		if b.BlogID == blogID {
			c := *b
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memBlogRepo) ListByPortfolioID(_ context.Context, portfolioID string) ([]*model.Blog, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := []*model.Blog{}
	for _, b := range r.st.blogs {
		if b.PortfolioID == portfolioID {
			out = append(out, b)
		}
	}
	slices.SortStableFunc(out, func(a, b *model.Blog) int { return a.Order - b.Order })
	return out, nil
}

func (r *memBlogRepo) Create(_ context.Context, b *model.Blog) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c := *b
	r.st.blogs = append(r.st.blogs, &c)
	return nil
}

func (r *memBlogRepo) Update(_ context.Context, b *model.Blog) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for i, cur := range r.st.blogs {
		if cur.BlogID == b.BlogID && cur.PortfolioID == b.PortfolioID {
			c := *b
			r.st.blogs[i] = &c
			return true, nil
		}
	}
	return false, nil
}

func (r *memBlogRepo) Delete(_ context.Context, blogID, portfolioID string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n := len(r.st.blogs)
	r.st.blogs = slices.DeleteFunc(r.st.blogs, func(b *model.Blog) bool {
		return b.BlogID == blogID && b.PortfolioID == portfolioID
	})
	return len(r.st.blogs) < n, nil
}

// --- キャッシュとメトリクス ---

type mockCache struct {
	entries     map[string]*PublicPortfolio
	invalidated []string
	gets        int
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]*PublicPortfolio{}}
}

func (c *mockCache) Get(_ context.Context, name string) (*PublicPortfolio, bool) {
	c.gets++
	v, ok := c.entries[name]
	return v, ok
}

func (c *mockCache) Set(_ context.Context, name string, view *PublicPortfolio) {
	c.entries[name] = view
}

func (c *mockCache) Invalidate(_ context.Context, names ...string) {
	for _, name := range names {
		delete(c.entries, name)
		c.invalidated = append(c.invalidated, name)
	}
}

type mockMetrics struct {
	metrics.NopCollector
	transitions []bool
	conflicts   int
	lookups     []bool
}

func (m *mockMetrics) RecordPublishTransition(published bool) {
	m.transitions = append(m.transitions, published)
}

func (m *mockMetrics) RecordSubdomainConflict() {
	m.conflicts++
}

func (m *mockMetrics) RecordPublicLookup(found bool) {
	m.lookups = append(m.lookups, found)
}

// --- テスト用のサービス生成 ---

type testEnv struct {
	store   *memStore
	cache   *mockCache
	metrics *mockMetrics
	svc     *Service
}

func newTestEnv() *testEnv {
	st := newMemStore()
	cache := newMockCache()
	m := &mockMetrics{}
	svc := NewService(
		&memPortfolioRepo{st: st},
		&memExperienceRepo{st: st},
		&memProjectRepo{st: st},
		&memBlogRepo{st: st},
		security.NewContentSanitizer(),
		cache,
		m,
	)
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return &testEnv{store: st, cache: cache, metrics: m, svc: svc}
}

func validAggregateInput(name string) AggregateInput {
	return AggregateInput{
		Personal: &PersonalInput{Name: name, Position: "Backend Engineer", Bio: "Go と PostgreSQL が好きです。"},
		Contact: &ContactInput{
			Email: "Taro@Example.com",
			SocialLinks: []SocialLinkInput{
				{Platform: "github", URL: "github.com/taro"},
			},
		},
	}
}

// mustCreate はアカウントのポートフォリオを作成して返す。
func (e *testEnv) mustCreate(t testing.TB, accountID, name string) *model.Portfolio {
	t.Helper()
	agg, err := e.svc.ReplaceAggregate(context.Background(), accountID, validAggregateInput(name))
	if err != nil {
		t.Fatalf("ReplaceAggregate() error = %v", err)
	}
	return agg.Portfolio
}

// compile-time interface check
var (
	_ repository.PortfolioRepository  = (*memPortfolioRepo)(nil)
	_ repository.ExperienceRepository = (*memExperienceRepo)(nil)
	_ repository.ProjectRepository    = (*memProjectRepo)(nil)
	_ repository.BlogRepository       = (*memBlogRepo)(nil)
	_ PublicCache                     = (*mockCache)(nil)
	_ metrics.MetricsCollector        = (*mockMetrics)(nil)
)
