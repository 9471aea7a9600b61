package app

// Command はtweeperバイナリのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandReconcile   Command = "reconcile"
	CommandHealthcheck Command = "healthcheck"
)

// commandDescriptions は起動ログに出すサブコマンドの説明。
// ここに無い名前はサブコマンドとして扱わない。
var commandDescriptions = map[Command]string{
	CommandServe:       "REST APIを提供する",
	CommandWorker:      "tweepのユーザー名整合を定期実行する",
	CommandMigrate:     "未適用のマイグレーションを適用する",
	CommandReconcile:   "tweepのユーザー名整合を1回実行する",
	CommandHealthcheck: "起動中のAPIの/healthを確認する（distrolessのHEALTHCHECK用）",
}

// Description はサブコマンドの説明を返す。
func (c Command) Description() string {
	return commandDescriptions[c]
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数なし・未知の名前はserveになる。2番目以降の引数は見ない。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd := Command(args[0]); commandDescriptions[cmd] != "" {
		return cmd
	}
	return CommandServe
}
