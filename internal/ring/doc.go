// Package ring implements a consistent hashing ring with virtual replicas.
// Node identities and lookup keys share one SHA-1 key space so that the
// ring and the join protocol agree on ordering.
package ring
