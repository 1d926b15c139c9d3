// Package graph lowers an exported spiking-network dataflow graph into the graph
// the neuromorphic substrate has to route.
//
// Nodes live in an arena and are addressed by integer handles; deleting a node
// invalidates its handle. Every node's kind is fixed when it is added, either
// explicitly or by a Classifier working from the exported node name.
//
// Lowering runs in two ordered steps:
//
//  1. EliminateLinear bypasses every fully-connected node: each predecessor is
//     wired to each successor and the linear node is dropped.
//  2. FoldRecurrent collapses every two-node cycle into a self-loop on the
//     neuron node, drops the recurrent-weight node and relabels the survivor to
//     its base name.
//
// Running a step before its prerequisite returns an OrderingError.
package graph
