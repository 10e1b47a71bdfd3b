package main

import (
	"os"

	"github.com/stockprophet/backend/cmd/stockprophet/commands"
)

// ⭐ 통합 CLI 진입점: go run ./cmd/stockprophet [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
