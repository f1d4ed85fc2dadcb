// Package build provides build information that is linked into the application. Other
// packages within this project can use this information in logs etc..
package build

var (
	// Version is the build version of the binary (e.g. v0.3.1). Set with -ldflags.
	Version = "dev"

	// Commit is the git commit SHA the binary was built from. Set with -ldflags.
	Commit = "none"

	// Date is the date the binary was built. Set with -ldflags.
	Date = "unknown"
)

// MinimumSupportedDatastoreSchemaRevision is the lowest schema revision of the SQL
// datastores this build can run against.
const MinimumSupportedDatastoreSchemaRevision = 1
