package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "neuron-mapper",
		Short: "Map spiking neural networks onto capacity-limited neuromorphic cores",
		Long: `neuron-mapper lowers the dataflow graph of a trained spiking network,
places every neuron on a fixed-capacity core and derives the connectivity,
buffer-lock and routing artifacts a manycore substrate needs.`,
		SilenceUsage: true,
	}
	root.AddCommand(newMapCommand(), newInspectCommand())
	return root
}
