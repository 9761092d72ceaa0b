// Package model defines the core identifier and record types shared by
// the connection infrastructure: node ids, synapse type ids, local
// connection ids, packed routing targets, packed source-index entries,
// connection records and query descriptors.
//
// Everything here is a value type. The packed representations (Target,
// SourceEntry) exist because routing tables and source indexes hold one
// entry per edge and billions of edges are the design target.
package model
