package version

// Build variables set through ldflags, for example
// -X 'github.com/compozy/relay/pkg/version.Version=v1.0.0'
var (
	// Version is the semantic version of the binary
	Version = "dev"
	// CommitHash is the git commit the binary was built from
	CommitHash = "unknown"
	// BuildDate is the RFC3339 build timestamp
	BuildDate = "unknown"
)

// Info returns build information in a structured format
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
}

// Get returns the current build information
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildDate:  BuildDate,
	}
}
