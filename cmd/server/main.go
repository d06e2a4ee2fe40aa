package main

import (
	"github.com/dwarvesf/fusion-bridge/internal/server"
)

// @title Fusion Bridge API
// @version 1.0
// @description Cross-chain HTLC order and escrow engine.
// @BasePath /api/v1
func main() {
	server.Init()
}
