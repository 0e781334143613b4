package cmd

import (
	"log"

	"github.com/merchantd/merchantd/internal/build"
	"github.com/spf13/cobra"
)

// NewVersionCommand returns the command to get the merchantd version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the merchantd version",
		Long:  "Return the merchantd version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(_ *cobra.Command, _ []string) error {
	log.Printf("merchantd Version %s Date %s commit id %s ", build.Version, build.Date, build.Commit)
	return nil
}
