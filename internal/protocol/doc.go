// Package protocol defines the datagram messages nodes exchange.
//
// Every request is one line of space-separated tokens. Payloads are decoded
// once at the transport boundary into a Message variant and the node
// dispatches on its concrete type. Keys, values and hosts may not contain
// whitespace.
package protocol
