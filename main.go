package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:                "rvld64",
		Short:              "Static linker for RISC-V 64-bit ELF objects",
		Version:            versionString,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseArgs(args)
			if err != nil {
				return err
			}
			initLogging(false)
			return Link(cfg)
		},
	}

	if err := root.Execute(); err != nil {
		Fatal("%v", err)
		os.Exit(1)
	}
}
