package grouper

import (
	"fmt"
	"net/url"
	"strings"
)

// DeriveGroupName はハブURLの名前空間から同期対象グループ名を導出する。
// 名前空間はハブURLのホスト名の最初のラベル（例: https://datahub.example.edu → datahub）。
// デフォルト名前空間の場合は "<prefix><defaultNS>-users"、
// それ以外は "<prefix><defaultNS>-<namespace>-users" となる。
// "staging"を含む名前空間のハブは同期対象外のためエラーを返す。
func DeriveGroupName(hubURL, prefix, defaultNS string) (string, error) {
	parsed, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("ハブURLの解析に失敗しました: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("ハブURLにホストがありません: %s", hubURL)
	}

	namespace := strings.Split(host, ".")[0]
	if strings.Contains(namespace, "staging") {
		return "", fmt.Errorf("staging名前空間は同期対象外です: %s", namespace)
	}

	if namespace == defaultNS {
		return prefix + defaultNS + "-users", nil
	}
	return prefix + defaultNS + "-" + namespace + "-users", nil
}
