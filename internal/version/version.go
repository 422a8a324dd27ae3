// Package version holds build information injected at link time.
package version

import "fmt"

var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = "unknown"
)

// SetInfo overrides the build fields that are non-empty.
func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// String renders the one-line version banner used by the CLI.
func String() string {
	return fmt.Sprintf("ggmhub %s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// FormatStartupMessage is the operator-chat message sent when a node starts.
func FormatStartupMessage(nodeID string) string {
	return fmt.Sprintf("🌱 GGM Hub node %s started\nVersion: %s\nBuild: %s", nodeID, Version, BuildTime)
}
