package web

import (
	"embed"
)

// staticFiles holds the controller page, compiled into the binary.
//
//go:embed static/*
var staticFiles embed.FS
