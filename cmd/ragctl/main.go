// Package main 是离线工具 ragctl 的入口：建索引、评测检索、列出模型、签发令牌、查看问答事件。
package main

import (
	"fmt"
	"os"

	"faq-rag-go/cmd/ragctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
