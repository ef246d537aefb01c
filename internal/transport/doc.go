// Package transport carries protocol payloads over UDP.
//
// A Conn is the bound socket a node serves from. A Session is a fresh
// socket opened towards one peer for outbound traffic; it allows at most one
// outstanding request/reply call at a time because replies carry no request
// identifiers.
package transport
