package main

import (
	"flag"
	"fmt"
	"os"

	"resolvedelta/api"
	"resolvedelta/config"
	"resolvedelta/utils"
)

func main() {
	// ヘルプフラグの定義
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	utils.LogInfo("ClickUp認証確認ツール")

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		utils.LogError("設定が不足しています: %v", err)
		os.Exit(1)
	}

	// ClickUpクライアントの初期化
	client := api.NewClickUpClient(cfg, config.DefaultPolicy())

	// 認証チェック
	utils.LogInfo("ClickUp APIの認証を確認しています...")
	err = client.CheckAuth()
	if err != nil {
		utils.LogError("ClickUp認証エラー: %v", err)
		utils.LogError("認証情報を確認してください。")
		os.Exit(1)
	}

	utils.LogInfo("ClickUp認証成功！ 接続先: %s", cfg.ClickUpURL)
	utils.LogInfo("ClickUp APIの認証情報は正常です。")
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
ClickUp認証確認ツール

使用方法:
  %s [オプション]

オプション:
  -help               このヘルプを表示する

環境変数:
  CLICKUP_API_TOKEN   ClickUp APIトークン (必須)
  CLICKUP_LIST_ID     ClickUpリストID (必須)
  CLICKUP_URL         ClickUp APIのベースURL (デフォルト: https://api.clickup.com/api/v2)

説明:
  このツールはClickUp APIの認証情報が正しく設定されているかを確認します。
  認証が成功すれば、他のツールも正常に動作する可能性が高いです。
`, os.Args[0])
}
