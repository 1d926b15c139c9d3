// Package network describes the layers of a trained spiking network as the mapper
// sees them.
//
// A Layer is a closed variant over three kinds, fixed when the layer is built:
//
//   - StatefulNeuronLayer: leaky / synaptic neurons; Neurons is the membrane
//     potential size.
//   - RecurrentStatefulLayer: neurons with an all-to-all recurrent weight;
//     Neurons is the layer's linear feature count.
//   - LinearLayer: a fully-connected transform with InFeatures/OutFeatures. It
//     hosts no neurons and is eliminated during graph lowering.
//
// LayerSet keeps declaration order, which is the order the allocator walks.
package network
