package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "sshmux",
		Short: "SSH multiplexing service: pooled connections, cached results, a safety gate",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON5 config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCheckCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
