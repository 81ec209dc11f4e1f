package main

import (
	"fmt"

	"github.com/helix-host/helix/internal/version"
)

func versionString() string {
	return fmt.Sprintf("helixd %s (api %s)", version.Core, version.API)
}
