package main

// Build-time version identity, injected via -ldflags:
//
//	go build -ldflags="-X main.version=${VERSION} -X main.commitHash=${COMMIT_HASH}"
var (
	version    = "dev"
	commitHash = "unknown"
)
