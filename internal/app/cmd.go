package app

import (
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は削除待ちオブジェクトの掃除ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示することを示す。
	CommandHelp Command = "help"
)

// commandUsages はサブコマンドと説明の一覧（表示順）。
var commandUsages = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "APIサーバーを起動する（デフォルト）"},
	{CommandWorker, "削除待ちオブジェクトの掃除を定期実行する"},
	{CommandMigrate, "データベースマイグレーションを適用する"},
	{CommandHealthcheck, "起動中のAPIサーバーの /health を確認する"},
	{CommandHelp, "この一覧を表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "-h", "--help":
		return CommandHelp
	}
	for _, u := range commandUsages {
		if string(u.cmd) == args[0] {
			return u.cmd
		}
	}
	return CommandServe
}

// PrintUsage はサブコマンドの一覧をwに出力する。
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: portfolium <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, u := range commandUsages {
		fmt.Fprintf(w, "  %-12s %s\n", u.cmd, u.desc)
	}
}
