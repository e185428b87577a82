package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandSync は同期デーモンモードで起動することを示す。
	CommandSync Command = "sync"
	// CommandOnce は同期サイクルを1回だけ実行して終了することを示す。
	CommandOnce Command = "once"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandSyncを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandSync
	}

	switch args[0] {
	case "sync":
		return CommandSync
	case "once":
		return CommandOnce
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandSync
	}
}
