// Package provider resolves named, versioned pipeline configurations.
//
// Providers are registered as functions (or loaded from YAML files) and
// resolved through a Registry that caches results per name and version and
// collapses concurrent resolutions of the same key into one call.
package provider
