package main

import (
	"log"

	"github.com/spf13/cobra"

	raftcli "github.com/amirimatin/graphraft/pkg/cli"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "raftd",
		Short:         "graphraft node CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	raftcli.AddAll(root)
	return root
}
