// Package media はプロフィール写真・プロジェクト画像・履歴書のアップロードと配信を提供する。
package media

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound は指定キーのオブジェクトが存在しないことを表す。
var ErrObjectNotFound = errors.New("object not found")

// Object はBlobStoreから読み出したオブジェクト。Bodyは呼び出し側でCloseする。
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// BlobStore はオブジェクトストレージの抽象。
type BlobStore interface {
	// Upload はオブジェクトを保存し、公開URLを返す。
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	// Delete はオブジェクトを削除する。存在しないキーの削除は成功として扱う。
	Delete(ctx context.Context, key string) error
	// Sign は期限付きのダウンロードURLを返す。
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Open はオブジェクトを読み出す。存在しない場合は ErrObjectNotFound を返す。
	Open(ctx context.Context, key string) (*Object, error)
}
