package artifacts

// Artifact file names.
const (
	CoreAllocationFile            = "core_allocation.json"
	NIRToCoresFile                = "nir_to_cores.json"
	NeuronToCoreFile              = "neuron_to_core.json"
	NeuronConnectivityFile        = "neuron_connectivity.json"
	ExcitatoryMatrixFile          = "excitatory_matrix.json"
	RecurrentExcitatoryMatrixFile = "recurrent_excitatory_matrix.json"
	ProcessedEdgesFile            = "processed_edges.json"
	BufferMapFile                 = "buffer_map.json"
	CoreTreeFile                  = "core_tree.json"
	ConnectivityMatrixFile        = "connectivity_matrix.json"
	RouteLoadFile                 = "route_load.json"
	ManifestFile                  = "mapping_manifest.json"
)
