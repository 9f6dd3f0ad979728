// Package persistence stores and restores state trees as linked records.
//
// A saved pipeline is one wrapper record, carrying the provider reference
// needed to rebuild its configuration, plus one record per descendant linked
// to its parent. Saving the same tree again reuses the assigned ids and prunes
// records of children that were removed in the meantime.
package persistence
