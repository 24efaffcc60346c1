package app

import (
	"fmt"
	"net/mail"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションのクリーンアップワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandGrantAdmin は指定したメールアドレスのユーザーを管理者にする。
	CommandGrantAdmin Command = "grant-admin"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck, CommandGrantAdmin}

// usage はコマンドの一覧を返す。
func usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return "usage: mindme [" + strings.Join(names, "|") + "]; grant-admin <email>"
}

// Invocation は解析済みのコマンドライン。
type Invocation struct {
	Command Command
	// Email は grant-admin の対象ユーザー。
	Email string
}

// ParseInvocation はコマンドライン引数からサブコマンドと引数を解析する。
// 引数が空の場合はserveとして扱う。未知のコマンドはエラーにする。
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{Command: CommandServe}, nil
	}

	cmd := Command(args[0])
	switch cmd {
	case CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck:
		return Invocation{Command: cmd}, nil
	case CommandGrantAdmin:
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			return Invocation{}, fmt.Errorf("grant-admin requires an email; %s", usage())
		}
		addr, err := mail.ParseAddress(strings.TrimSpace(args[1]))
		if err != nil {
			return Invocation{}, fmt.Errorf("invalid email %q: %w", args[1], err)
		}
		return Invocation{Command: cmd, Email: addr.Address}, nil
	default:
		return Invocation{}, fmt.Errorf("unknown command %q; %s", args[0], usage())
	}
}
