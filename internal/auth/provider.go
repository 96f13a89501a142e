package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/portfolium/internal/model"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// GitHubとGoogleで共通の外部IdP主張（model.ExternalIdentity）を返す。
type OAuthProvider interface {
	// Name はプロバイダー種別を返す。
	Name() model.Provider
	// LoginURL はstateを含むOAuth認証URLを生成する。
	LoginURL(state string) string
	// Exchange は認可コードをトークンに交換し、外部IdPのユーザー情報を取得する。
	Exchange(ctx context.Context, code string) (*model.ExternalIdentity, error)
}

// getJSON はアクセストークン付きでGETし、レスポンスをdstにデコードする。
func getJSON(ctx context.Context, client *http.Client, endpoint, accessToken string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s failed with status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
