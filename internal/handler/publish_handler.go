package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/portfolio"
)

// PublishServiceInterface は公開管理と公開ページ参照に必要なサービスインターフェース。
type PublishServiceInterface interface {
	Status(ctx context.Context, accountID string) (*model.PublicationStatus, error)
	Publish(ctx context.Context, accountID string) (*model.PublicationStatus, error)
	Unpublish(ctx context.Context, accountID string) (*model.PublicationStatus, error)
	ClaimCustomSubdomain(ctx context.Context, accountID, desired string) (*model.PublicationStatus, error)
	PublicView(ctx context.Context, name string) (*portfolio.PublicPortfolio, error)
}

// PublishHandler は公開状態の管理と公開ページ参照のHTTPハンドラー。
type PublishHandler struct {
	service PublishServiceInterface
}

// NewPublishHandler はPublishHandlerを生成する。
func NewPublishHandler(service PublishServiceInterface) *PublishHandler {
	return &PublishHandler{service: service}
}

// claimSubdomainRequest はカスタムサブドメイン設定リクエストのボディ。
// 空文字の場合は解除する。
type claimSubdomainRequest struct {
	CustomSubdomain string `json:"customSubdomain"`
}

// publicationStatusResponse は公開状態のAPIレスポンス。
type publicationStatusResponse struct {
	IsPublished     bool       `json:"isPublished"`
	PublishedAt     *time.Time `json:"publishedAt"`
	Subdomain       string     `json:"subdomain"`
	CustomSubdomain string     `json:"customSubdomain,omitempty"`
}

// Status は公開状態を返す。
// GET /api/publish/status
func (h *PublishHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.respondStatus(w, r, h.service.Status)
}

// Publish はポートフォリオを公開する。
// POST /api/publish
func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.respondStatus(w, r, h.service.Publish)
}

// Unpublish はポートフォリオを非公開にする。
// DELETE /api/publish
func (h *PublishHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.respondStatus(w, r, h.service.Unpublish)
}

// ClaimSubdomain はカスタムサブドメインを設定または解除する。
// PUT /api/publish/subdomain
func (h *PublishHandler) ClaimSubdomain(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var req claimSubdomainRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status, err := h.service.ClaimCustomSubdomain(r.Context(), accountID, req.CustomSubdomain)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toPublicationStatusResponse(status))
}

// PublicPortfolio は公開中のポートフォリオをサブドメイン名で返す。認証不要。
// GET /api/public/{subdomain}
func (h *PublishHandler) PublicPortfolio(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.PublicView(r.Context(), chi.URLParam(r, "subdomain"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeData(w, http.StatusOK, view)
}

func (h *PublishHandler) respondStatus(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, accountID string) (*model.PublicationStatus, error)) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	status, err := fn(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toPublicationStatusResponse(status))
}

func toPublicationStatusResponse(s *model.PublicationStatus) publicationStatusResponse {
	return publicationStatusResponse{
		IsPublished:     s.IsPublished,
		PublishedAt:     s.PublishedAt,
		Subdomain:       s.Subdomain,
		CustomSubdomain: s.CustomSubdomain,
	}
}
