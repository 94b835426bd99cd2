package main

import (
	"os"

	"qa-compass-server/src/app"
)

var version string

// @title QA Compass API
// @version 1.0
// @description 会话质量评估服务
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cmd := app.NewCommand(version)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
