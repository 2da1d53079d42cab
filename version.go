package notifier

import (
	"fmt"
	"runtime/debug"
)

type VersionType struct {
	major, minor, patch int
}

var Version = VersionType{major: 0, minor: 3, patch: 0}
var VersionString = fmt.Sprint(Version.major, ".", Version.minor, ".", Version.patch)
var VCSRevision string

func init() {
	bi, ok := debug.ReadBuildInfo()
	if ok {
		for _, bs := range bi.Settings {
			if bs.Key == "vcs.revision" {
				VCSRevision = bs.Value
			}
		}
	}
}
