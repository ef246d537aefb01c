// Package admin exposes a node over gRPC for operators: owner lookups,
// local reads, join requests and node statistics. Requests and replies are
// protobuf well-known types.
package admin
