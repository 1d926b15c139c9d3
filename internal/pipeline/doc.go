// Package pipeline runs one neuron mapping from inputs to published artifacts.
//
// A run follows a fixed sequence of stages:
//
//	Lowering → Allocation → Connectivity → Buffers → Routing → Publish
//	 (graph)   (allocator)  (connectivity)  (buffers)  (topology) (artifacts)
//
// Example usage:
//
//	runner := pipeline.NewRunner(opts, recorder, artifacts.NewDirSink("out"))
//	result, err := runner.Run(ctx, inputs)
//	if err != nil {
//	    log.Error(err, "mapping failed")
//	    return err
//	}
//	log.Info("mapping complete", "cores", result.Allocation.CoresUsed())
//
// Run Flow:
//
//  1. Lower the raw graph, when one is described
//     - Eliminate linear nodes
//     - Fold recurrent 2-cycles into self-loops
//
//  2. Allocate neurons to cores
//     - Contiguous or scatter policy
//     - Output layer on a dedicated core
//
//  3. Derive connectivity, when weights are supplied
//     - Sparse connectivity map
//     - Excitatory, recurrent excitatory and thresholded binary matrices
//
//  4. Map buffer locks, when an access list is supplied
//
//  5. Build the core tree and estimate route load for the recurrent layer
//
//  6. Publish
//     - Encode every artifact and the run manifest
//     - Hand the set to each sink, only after every stage succeeded
//
// Any stage error ends the run. Nothing is published for a failed run.
package pipeline
