// Package main is the entry point of the placement rounds API.
package main

import (
	"os"

	"github.com/noah-isme/placement-rounds-api/cmd/placement-api/cmd"
)

// @title Placement Rounds API
// @version 1.0.0
// @description Round progression, attendance sessions and bulk advancement for campus placement drives
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
