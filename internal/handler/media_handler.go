package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/portfolium/internal/media"
	"github.com/hitoshi/portfolium/internal/middleware"
	"github.com/hitoshi/portfolium/internal/model"
)

// multipartOverheadBytes はmultipartの境界やヘッダー分としてファイル上限に上乗せする量。
const multipartOverheadBytes = 1 << 20

// MediaServiceInterface はメディアハンドラーが必要とするサービスインターフェース。
type MediaServiceInterface interface {
	MaxBytes() int64
	UploadProfilePhoto(ctx context.Context, accountID string, up media.Upload) (*media.Ref, error)
	ProfilePhoto(ctx context.Context, accountID string) (*media.Ref, error)
	DeleteProfilePhoto(ctx context.Context, accountID string) error
	UploadProjectImage(ctx context.Context, accountID, projectID string, up media.Upload) (*media.Ref, error)
	DeleteProjectImage(ctx context.Context, accountID, projectID string) error
	UploadResume(ctx context.Context, accountID string, up media.Upload) (*model.Resume, error)
	ResumeURL(ctx context.Context, accountID string) (*media.SignedURL, error)
	DeleteResume(ctx context.Context, accountID string) error
	OpenPublicResume(ctx context.Context, accountID, fileName string) (*media.Object, error)
}

// MediaHandler はファイルアップロードと配信のHTTPハンドラー。
type MediaHandler struct {
	service MediaServiceInterface
}

// NewMediaHandler はMediaHandlerを生成する。
func NewMediaHandler(service MediaServiceInterface) *MediaHandler {
	return &MediaHandler{service: service}
}

// UploadProfilePhoto はプロフィール写真をアップロードする。フォームフィールドは "photo"。
// POST /api/media/profile-photo
func (h *MediaHandler) UploadProfilePhoto(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	up, ok := h.readUpload(w, r, "photo")
	if !ok {
		return
	}

	ref, err := h.service.UploadProfilePhoto(r.Context(), accountID, up)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, ref)
}

// ProfilePhoto は現在のプロフィール写真の参照を返す。
// GET /api/media/profile-photo
func (h *MediaHandler) ProfilePhoto(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	ref, err := h.service.ProfilePhoto(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ref)
}

// DeleteProfilePhoto はプロフィール写真を削除する。
// DELETE /api/media/profile-photo
func (h *MediaHandler) DeleteProfilePhoto(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProfilePhoto(r.Context(), accountID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadProjectImage はプロジェクト画像をアップロードする。フォームフィールドは "image"。
// POST /api/media/project/{projectId}
func (h *MediaHandler) UploadProjectImage(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	up, ok := h.readUpload(w, r, "image")
	if !ok {
		return
	}

	ref, err := h.service.UploadProjectImage(r.Context(), accountID, chi.URLParam(r, "projectId"), up)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, ref)
}

// DeleteProjectImage はプロジェクト画像を削除する。
// DELETE /api/media/project/{projectId}
func (h *MediaHandler) DeleteProjectImage(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProjectImage(r.Context(), accountID, chi.URLParam(r, "projectId")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadResume は履歴書PDFをアップロードする。フォームフィールドは "resume"。
// POST /api/media/resume
func (h *MediaHandler) UploadResume(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}
	up, ok := h.readUpload(w, r, "resume")
	if !ok {
		return
	}

	resume, err := h.service.UploadResume(r.Context(), accountID, up)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, resumeResponse{FileID: resume.FileID, FileName: resume.FileName})
}

// ResumeURL は履歴書の署名付きダウンロードURLを返す。
// GET /api/media/resume
func (h *MediaHandler) ResumeURL(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	signed, err := h.service.ResumeURL(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, signed)
}

// DeleteResume は履歴書を削除する。
// DELETE /api/media/resume
func (h *MediaHandler) DeleteResume(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteResume(r.Context(), accountID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublicResume は公開中ポートフォリオの履歴書をストリーミングで返す。認証不要。
// GET /api/media/resume/{accountId}/resume/{filename}
func (h *MediaHandler) PublicResume(w http.ResponseWriter, r *http.Request) {
	fileName := chi.URLParam(r, "filename")
	obj, err := h.service.OpenPublicResume(r.Context(), chi.URLParam(r, "accountId"), fileName)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": fileName}))
	if obj.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Warn("resume streaming interrupted",
			slog.String("file_name", fileName),
			slog.String("error", err.Error()),
		)
	}
}

// readUpload はmultipartフォームからファイルを読み込む。
// サイズ上限を超えた場合は413、ファイルがない場合は400を書き込みfalseを返す。
func (h *MediaHandler) readUpload(w http.ResponseWriter, r *http.Request, field string) (media.Upload, bool) {
	limit := h.service.MaxBytes()
	if r.ContentLength > limit+multipartOverheadBytes {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewFileTooLargeError(limit))
		return media.Upload{}, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverheadBytes)

	file, header, err := r.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewFileTooLargeError(limit))
			return media.Upload{}, false
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(field, "ファイルが指定されていません"))
		return media.Upload{}, false
	}
	defer file.Close()

	// 上限+1バイトまで読み、超過判定はサービス層に任せる
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewFileTooLargeError(limit))
			return media.Upload{}, false
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return media.Upload{}, false
	}

	return media.Upload{FileName: header.Filename, Data: data}, true
}
