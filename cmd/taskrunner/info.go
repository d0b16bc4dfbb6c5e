package main

import (
	"fmt"

	"github.com/cuemby/taskrunner/pkg/cli"
	"github.com/cuemby/taskrunner/pkg/sched"
	"github.com/cuemby/taskrunner/pkg/task"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print registered schedulers, codelets, and memory node count",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		rt, err := cli.StartRuntime(configPath, dataDir)
		if err != nil {
			return err
		}
		defer rt.Shutdown()

		fmt.Println("Schedulers:")
		for _, name := range sched.PolicyNames() {
			fmt.Printf("  %s\n", name)
		}

		fmt.Println("Codelets:")
		for _, name := range task.CodeletNames() {
			fmt.Printf("  %s\n", name)
		}

		fmt.Printf("Memory nodes: %d\n", rt.Nodes.Count())
		return nil
	},
}
