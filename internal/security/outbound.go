// Package security は外部APIへのアウトバウンド通信の保護機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はアウトバウンド通信で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// ValidateBaseURL は設定されたAPIベースURLを起動時に検証する。
// スキームとホストの静的チェックのみ行い、DNS解決は伴わない。
// ハブ・ディレクトリのベースURLは運用者が設定する値だが、
// 設定ミスを早期に検出するため起動時に1回検証する。
func ValidateBaseURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	if parsed.Hostname() == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	return nil
}

// NewStrictClient はsafeurlによる保護付きのHTTPクライアントを生成する。
// プライベートIP、ループバック、リンクローカル、メタデータIPへの
// リクエストがDialerレベルでブロックされる（DNS再バインディング対策込み）。
// ハブがクラスタ内部アドレスで動作するデプロイでは使用できないため、
// OUTBOUND_STRICT=true の場合のみ選択される。
func NewStrictClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// NewClient は標準のHTTPクライアントを生成する。
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}
