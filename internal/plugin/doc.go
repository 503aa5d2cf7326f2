// Package plugin defines the Plugin capability and the Registry that manages
// plugin lifecycles and serves the merged, cached rule set.
package plugin
