package version

// Build metadata. Release builds override these with
// -ldflags "-X github.com/StinkyLord/gh-sbom-export/internal/version.Version=...".
var (
	Version   = "0.1.0"          // Version of gh-sbom-export
	Toolname  = "gh-sbom-export" // Name written into metadata.tools
	Vendor    = "StinkyLord"     // Vendor written into metadata.tools
	BuildDate = "unknown"        // Date when the tool was built
	CommitSHA = "unknown"        // Commit SHA of the tool
)
