package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/portfolio"
	"github.com/hitoshi/portfolium/internal/repository"
)

const (
	// DefaultMaxUploadBytes はアップロードサイズの既定上限（10MiB）。
	DefaultMaxUploadBytes int64 = 10 << 20
	// DefaultResumeURLTTL は履歴書の署名付きURLの既定有効期間。
	DefaultResumeURLTTL = time.Hour
)

// 用途ごとに許可する実ファイル形式と拡張子。
var (
	imageTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}
	resumeTypes = map[string]string{
		"application/pdf": ".pdf",
	}
)

var errStoreNotConfigured = errors.New("blob store is not configured")

var unsafeFileNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Upload はアップロードされたファイル。
type Upload struct {
	FileName string
	Data     []byte
}

// Ref はアップロード済みオブジェクトへの参照。
type Ref struct {
	Key string `json:"fileId"`
	URL string `json:"url"`
}

// SignedURL は期限付きのダウンロードURL。
type SignedURL struct {
	URL       string    `json:"url"`
	FileName  string    `json:"fileName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PortfolioInvalidator はポートフォリオの公開キャッシュを破棄する。
type PortfolioInvalidator interface {
	Invalidate(ctx context.Context, accountID string)
}

// Service はメディアのユースケースを提供する。
type Service struct {
	store         BlobStore
	accountRepo   repository.AccountRepository
	portfolioRepo repository.PortfolioRepository
	projectRepo   repository.ProjectRepository
	tombstoneRepo repository.BlobTombstoneRepository
	guard         *portfolio.Guard
	invalidator   PortfolioInvalidator
	maxBytes      int64
	resumeTTL     time.Duration
	now           func() time.Time
}

// NewService はServiceを生成する。storeがnilの場合、全操作がSTORAGE_NOT_CONFIGUREDとなる。
func NewService(
	store BlobStore,
	accountRepo repository.AccountRepository,
	portfolioRepo repository.PortfolioRepository,
	projectRepo repository.ProjectRepository,
	tombstoneRepo repository.BlobTombstoneRepository,
	guard *portfolio.Guard,
	invalidator PortfolioInvalidator,
	maxBytes int64,
	resumeTTL time.Duration,
) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if resumeTTL <= 0 {
		resumeTTL = DefaultResumeURLTTL
	}
	return &Service{
		store:         store,
		accountRepo:   accountRepo,
		portfolioRepo: portfolioRepo,
		projectRepo:   projectRepo,
		tombstoneRepo: tombstoneRepo,
		guard:         guard,
		invalidator:   invalidator,
		maxBytes:      maxBytes,
		resumeTTL:     resumeTTL,
		now:           time.Now,
	}
}

// MaxBytes はアップロードサイズの上限を返す。
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// UploadProfilePhoto はプロフィール写真を保存し、旧写真を破棄する。
func (s *Service) UploadProfilePhoto(ctx context.Context, accountID string, up Upload) (*Ref, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	contentType, ext, err := s.checkUpload(up, imageTypes)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/profile/%s%s", accountID, uuid.NewString(), ext)
	url, err := s.put(ctx, key, up.Data, contentType)
	if err != nil {
		return nil, err
	}
	if err := s.accountRepo.UpdateProfilePhoto(ctx, accountID, key, url); err != nil {
		s.discard(ctx, accountID, key)
		return nil, fmt.Errorf("failed to update profile photo: %w", err)
	}
	if account.ProfilePhotoID != "" {
		s.discard(ctx, accountID, account.ProfilePhotoID)
	}
	s.invalidator.Invalidate(ctx, accountID)
	return &Ref{Key: key, URL: url}, nil
}

// ProfilePhoto は現在のプロフィール写真を返す。
func (s *Service) ProfilePhoto(ctx context.Context, accountID string) (*Ref, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.ProfilePhotoID == "" {
		return nil, model.NewMediaNotFoundError("profile")
	}
	return &Ref{Key: account.ProfilePhotoID, URL: account.ProfilePhotoURL}, nil
}

// DeleteProfilePhoto はプロフィール写真を削除する。
func (s *Service) DeleteProfilePhoto(ctx context.Context, accountID string) error {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.ProfilePhotoID == "" {
		return model.NewMediaNotFoundError("profile")
	}
	if err := s.accountRepo.UpdateProfilePhoto(ctx, accountID, "", ""); err != nil {
		return fmt.Errorf("failed to clear profile photo: %w", err)
	}
	s.discard(ctx, accountID, account.ProfilePhotoID)
	s.invalidator.Invalidate(ctx, accountID)
	return nil
}

// UploadProjectImage は所有者を確認してからプロジェクト画像を保存する。
func (s *Service) UploadProjectImage(ctx context.Context, accountID, projectID string, up Upload) (*Ref, error) {
	v, err := s.guard.Verify(ctx, accountID, model.ChildKindProject, projectID)
	if err != nil {
		return nil, err
	}
	contentType, ext, err := s.checkUpload(up, imageTypes)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/projects/%s/%s%s", accountID, projectID, uuid.NewString(), ext)
	url, err := s.put(ctx, key, up.Data, contentType)
	if err != nil {
		return nil, err
	}
	ok, err := s.projectRepo.UpdateImage(ctx, projectID, v.Portfolio.ID, key, url)
	if err != nil || !ok {
		s.discard(ctx, accountID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to update project image: %w", err)
		}
		return nil, model.NewChildNotFoundError(model.ChildKindProject, projectID)
	}
	if v.Project.ImageID != "" {
		s.discard(ctx, accountID, v.Project.ImageID)
	}
	s.invalidator.Invalidate(ctx, accountID)
	return &Ref{Key: key, URL: url}, nil
}

// DeleteProjectImage は所有者を確認してからプロジェクト画像を削除する。
func (s *Service) DeleteProjectImage(ctx context.Context, accountID, projectID string) error {
	v, err := s.guard.Verify(ctx, accountID, model.ChildKindProject, projectID)
	if err != nil {
		return err
	}
	if v.Project.ImageID == "" {
		return model.NewMediaNotFoundError(projectID)
	}
	if _, err := s.projectRepo.UpdateImage(ctx, projectID, v.Portfolio.ID, "", ""); err != nil {
		return fmt.Errorf("failed to clear project image: %w", err)
	}
	s.discard(ctx, accountID, v.Project.ImageID)
	s.invalidator.Invalidate(ctx, accountID)
	return nil
}

// UploadResume は履歴書PDFを {accountId}/resume/{filename} に保存する。
func (s *Service) UploadResume(ctx context.Context, accountID string, up Upload) (*model.Resume, error) {
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}
	contentType, ext, err := s.checkUpload(up, resumeTypes)
	if err != nil {
		return nil, err
	}

	fileName := safeFileName(up.FileName, ext)
	key := ResumeKey(accountID, fileName)
	if _, err := s.put(ctx, key, up.Data, contentType); err != nil {
		return nil, err
	}

	resume := model.Resume{FileID: key, FileName: fileName}
	if err := s.portfolioRepo.UpdateResume(ctx, p.ID, resume); err != nil {
		if key != p.Resume.FileID {
			s.discard(ctx, accountID, key)
		}
		return nil, fmt.Errorf("failed to update resume: %w", err)
	}
	if p.Resume.FileID != "" && p.Resume.FileID != key {
		s.discard(ctx, accountID, p.Resume.FileID)
	}
	s.invalidator.Invalidate(ctx, accountID)
	return &resume, nil
}

// ResumeURL は履歴書の署名付きURLを返す。
func (s *Service) ResumeURL(ctx context.Context, accountID string) (*SignedURL, error) {
	if s.store == nil {
		return nil, model.NewStorageNotConfiguredError()
	}
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if p.Resume.FileID == "" || !model.OwnsBlobKey(accountID, p.Resume.FileID) {
		return nil, model.NewMediaNotFoundError("resume")
	}

	url, err := s.store.Sign(ctx, p.Resume.FileID, s.resumeTTL)
	if err != nil {
		slog.Error("failed to sign resume url",
			slog.String("key", p.Resume.FileID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewBlobStoreError()
	}
	return &SignedURL{URL: url, FileName: p.Resume.FileName, ExpiresAt: s.now().Add(s.resumeTTL)}, nil
}

// DeleteResume は履歴書を削除する。
func (s *Service) DeleteResume(ctx context.Context, accountID string) error {
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return err
	}
	if p.Resume.FileID == "" {
		return model.NewMediaNotFoundError("resume")
	}
	if err := s.portfolioRepo.UpdateResume(ctx, p.ID, model.Resume{}); err != nil {
		return fmt.Errorf("failed to clear resume: %w", err)
	}
	s.discard(ctx, accountID, p.Resume.FileID)
	s.invalidator.Invalidate(ctx, accountID)
	return nil
}

// OpenPublicResume は公開中のポートフォリオの履歴書を読み出す。
// 履歴書が無効、未公開、または現在の履歴書と異なるキーの場合はNotFound。
func (s *Service) OpenPublicResume(ctx context.Context, accountID, fileName string) (*Object, error) {
	if s.store == nil {
		return nil, model.NewStorageNotConfiguredError()
	}
	key := ResumeKey(accountID, fileName)

	p, err := s.portfolioRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio: %w", err)
	}
	if p == nil || !p.IsPublished || !p.Settings.ResumeEnabled || p.Resume.FileID != key {
		return nil, model.NewMediaNotFoundError(key)
	}

	obj, err := s.store.Open(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, model.NewMediaNotFoundError(key)
	}
	if err != nil {
		slog.Error("failed to open resume",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, model.NewBlobStoreError()
	}
	return obj, nil
}

// ResumeKey は履歴書のオブジェクトキーを返す。
func ResumeKey(accountID, fileName string) string {
	return accountID + "/resume/" + fileName
}

// checkUpload はサイズと実ファイル形式を検証し、Content-Typeと拡張子を返す。
func (s *Service) checkUpload(up Upload, allowed map[string]string) (string, string, error) {
	if s.store == nil {
		return "", "", model.NewStorageNotConfiguredError()
	}
	if len(up.Data) == 0 {
		return "", "", model.NewValidationError("file", "ファイルが空です")
	}
	if int64(len(up.Data)) > s.maxBytes {
		return "", "", model.NewFileTooLargeError(s.maxBytes)
	}

	detected := mimetype.Detect(up.Data)
	for mime := detected; mime != nil; mime = mime.Parent() {
		if ext, ok := allowed[mime.String()]; ok {
			return mime.String(), ext, nil
		}
	}
	return "", "", model.NewUnsupportedMediaTypeError(detected.String())
}

func (s *Service) put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	url, err := s.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		slog.Error("failed to upload object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", model.NewBlobStoreError()
	}
	return url, nil
}

// discard は不要になったオブジェクトを削除する。accountIDのプレフィックス外のキーは削除しない。
// 削除に失敗した場合は削除待ちキューに積み、ワーカーに再試行させる。
func (s *Service) discard(ctx context.Context, accountID, key string) {
	if !model.OwnsBlobKey(accountID, key) {
		slog.Warn("所有外のオブジェクトキーのため削除しません",
			slog.String("account_id", accountID),
			slog.String("key", key),
		)
		return
	}
	err := errStoreNotConfigured
	if s.store != nil {
		err = s.store.Delete(ctx, key)
	}
	if err == nil {
		return
	}
	slog.Warn("オブジェクトの削除に失敗したため削除待ちキューに積みます",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
	if err := s.tombstoneRepo.Enqueue(ctx, []string{key}); err != nil {
		slog.Error("failed to enqueue blob tombstone",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) requireAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}
	return account, nil
}

func (s *Service) requirePortfolio(ctx context.Context, accountID string) (*model.Portfolio, error) {
	p, err := s.portfolioRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio: %w", err)
	}
	if p == nil {
		return nil, model.NewPortfolioNotFoundError()
	}
	return p, nil
}

// safeFileName はパス要素と使用できない文字を取り除いたファイル名を返す。
func safeFileName(name, ext string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.Trim(unsafeFileNameChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "resume"
	}
	if len(base) > 100 {
		base = base[:100]
	}
	return base + ext
}
