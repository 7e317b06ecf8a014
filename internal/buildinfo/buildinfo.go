// Package buildinfo holds version details stamped at build time, e.g.
//
//	go build -ldflags "-X maize-backend/internal/buildinfo.Version=2.1.0 \
//	  -X maize-backend/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

var (
	Version   = "2.0.0"
	Commit    = ""
	BuildDate = ""
)

// String is Version, plus the commit when one was stamped in.
func String() string {
	if Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}
