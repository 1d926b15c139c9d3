// Package connectivity derives neuron-level connectivity from dense weight
// matrices.
//
// Weight matrices use the training framework layout: rows are targets and
// columns are sources. Extract produces the sparse source -> target map,
// ExcitatoryMatrix and RecurrentExcitatoryMatrix keep only positive weights,
// and BinaryMatrix thresholds a matrix into a 0/1 routing mask.
package connectivity
