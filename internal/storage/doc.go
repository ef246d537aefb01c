// Package storage provides the node-local key-value store. A store is owned
// by exactly one node; the join protocol reads it in bulk and absorbs a
// peer's entries into it.
package storage
