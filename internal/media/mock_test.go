package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/repository"
)

// --- BlobStore ---

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	deleted   []string
	uploadErr error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", errors.New("size mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStore) Sign(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://cdn.example.com/" + key + "?expires=" + ttl.String(), nil
}

func (f *fakeStore) Open(_ context.Context, key string) (*Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return &Object{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   f.types[key],
		ContentLength: int64(len(data)),
	}, nil
}

// --- リポジトリ ---

type mockAccountRepo struct {
	repository.AccountRepository
	account *model.Account
}

func (m *mockAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	if m.account == nil || m.account.ID != id {
		return nil, nil
	}
	c := *m.account
	return &c, nil
}

func (m *mockAccountRepo) UpdateProfilePhoto(_ context.Context, _ string, photoID, photoURL string) error {
	m.account.ProfilePhotoID = photoID
	m.account.ProfilePhotoURL = photoURL
	return nil
}

type mockPortfolioRepo struct {
	repository.PortfolioRepository
	portfolio *model.Portfolio
	updateErr error
}

func (m *mockPortfolioRepo) FindByID(_ context.Context, id string) (*model.Portfolio, error) {
	if m.portfolio == nil || m.portfolio.ID != id {
		return nil, nil
	}
	c := *m.portfolio
	return &c, nil
}

func (m *mockPortfolioRepo) FindByAccountID(_ context.Context, accountID string) (*model.Portfolio, error) {
	if m.portfolio == nil || m.portfolio.AccountID != accountID {
		return nil, nil
	}
	c := *m.portfolio
	return &c, nil
}

func (m *mockPortfolioRepo) UpdateResume(_ context.Context, _ string, resume model.Resume) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.portfolio.Resume = resume
	return nil
}

type mockProjectRepo struct {
	repository.ProjectRepository
	project *model.Project
}

func (m *mockProjectRepo) FindByID(_ context.Context, id string) (*model.Project, error) {
	if m.project == nil || m.project.ID != id {
		return nil, nil
	}
	c := *m.project
	return &c, nil
}

func (m *mockProjectRepo) UpdateImage(_ context.Context, id, portfolioID, imageID, imageURL string) (bool, error) {
	if m.project == nil || m.project.ID != id || m.project.PortfolioID != portfolioID {
		return false, nil
	}
	m.project.ImageID, m.project.ImageURL = imageID, imageURL
	return true, nil
}

type mockTombstoneRepo struct {
	repository.BlobTombstoneRepository
	enqueued []string
}

func (m *mockTombstoneRepo) Enqueue(_ context.Context, keys []string) error {
	m.enqueued = append(m.enqueued, keys...)
	return nil
}

type mockInvalidator struct {
	accounts []string
}

func (m *mockInvalidator) Invalidate(_ context.Context, accountID string) {
	m.accounts = append(m.accounts, accountID)
}
