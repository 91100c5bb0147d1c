package commands

import "strings"

var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
)

func BuildDisplayVersion() string {
	version := strings.TrimSpace(BuildVersion)
	if version == "" || version == "dev" {
		return "dev"
	}

	commit := strings.TrimSpace(BuildCommit)
	if commit == "" || commit == "unknown" {
		return version
	}

	return version + " (" + commit + ")"
}
