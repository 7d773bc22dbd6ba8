package app

// Build information, overridden with -ldflags "-X" at release time.
var (
	BuildVersion = "0.0.0-dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// VersionString formats the build information for the version command.
func VersionString() string {
	return "pagemigrate " + BuildVersion + " (" + BuildCommit + ", " + BuildDate + ")"
}
