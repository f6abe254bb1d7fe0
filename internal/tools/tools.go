// Package tools pins build tooling in go.mod so everyone runs the same
// versions. It is never imported by real code, the build tag keeps it out
// of ordinary builds.

//go:build tools

package tools

import (
	_ "github.com/dvyukov/go-fuzz/go-fuzz"
	_ "github.com/dvyukov/go-fuzz/go-fuzz-build"
	_ "github.com/githubnemo/CompileDaemon"
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "github.com/jstemmer/go-junit-report"
	_ "github.com/mattn/goveralls"
	_ "golang.org/x/tools/cmd/goimports"
)
