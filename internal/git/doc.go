// Package git wraps go-git with the commit, tree and ref primitives the
// engine needs: reading commit descriptors, writing commits and trees,
// compare-and-swap ref updates, ancestry queries and three-way tree merges.
// The working tree is never touched; everything operates on the object store.
package git
