// Package runtime implements the state tree: the in-memory node graph of one
// pipeline instance, its structural mutations, step execution and the
// consistency rules that keep outputs honest about their inputs.
//
// A Tree is not safe for concurrent structural edits from several callers in
// any meaningful order; the driver serialises commands against it. Reads
// (projections, lock state) are safe from any goroutine.
package runtime
