// Package version holds the host's core and API version constants,
// checked against a manifest's minimum_core_version / minimum_api_version
// fields during install.
package version

// Core is the supervisor implementation's own version.
const Core = "1.4.0"

// API is the version of the module entry-point contract (init/start/stop/
// destroy signatures) this host implements.
const API = "1.0.0"
