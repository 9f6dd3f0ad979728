// Package driver is the single command intake of a pipeline engine.
//
// A Driver owns the current state tree, drains commands strictly one at a
// time in submission order and republishes the derived projections after
// every command that changed the tree.
package driver
