package main

import (
	"testing"

	"bloomsketch/internal/config"
)

func TestPrintAdminToken(t *testing.T) {
	cfg := config.SystemConfiguration{
		AuthenticationSecret: "secret",
	}
	printAdminToken(cfg) // Visual check
}
