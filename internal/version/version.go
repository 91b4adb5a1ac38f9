package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func Full(binary string) string {
	return fmt.Sprintf("%s %s, commit %s, built at %s", binary, Version, Commit, Date)
}
