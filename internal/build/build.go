// Package build holds build metadata stamped in at link time via -ldflags.
package build

var (
	// ProjectName is the canonical name of this project.
	ProjectName = "merchantd"

	// Version is the release version, or "dev" for unreleased builds.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = ""

	// Date is the build timestamp.
	Date = ""
)

// MinimumSupportedDatastoreSchemaRevision is the lowest datastore schema
// version this build can serve. Readiness checks refuse datastores below it.
const MinimumSupportedDatastoreSchemaRevision int64 = 2
