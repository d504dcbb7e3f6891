// Package version holds the hub version consulted by manifest compatibility
// checks and stamped onto diagnostic runs.
package version

// Version is the semantic version of the modhub host. Module manifests may
// declare a "requires" constraint against it.
const Version = "0.3.1"
