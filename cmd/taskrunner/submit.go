package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/taskrunner/pkg/rpc"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a task against a remote gateway started with `serve`",
	Long: `submit dials a running taskrunner gateway and submits one task against
codelet-name and already-registered handle ids living in that remote
process (pkg/rpc exposes no RPC for registering fresh data, only for
submitting work against data the host process already holds). Run with
no --codelet to just list the remote gateway's registered codelets, the
simpler sanity check against a running "taskrunner serve".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		codelet, _ := cmd.Flags().GetString("codelet")
		handlesFlag, _ := cmd.Flags().GetString("handles")
		modesFlag, _ := cmd.Flags().GetString("modes")
		priority, _ := cmd.Flags().GetInt("priority")

		c, err := rpc.Dial(addr)
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if codelet == "" {
			info, err := c.Info(ctx, &rpc.InfoRequest{})
			if err != nil {
				return fmt.Errorf("info: %w", err)
			}
			fmt.Println("Remote codelets:")
			for _, name := range info.Codelets {
				fmt.Printf("  %s\n", name)
			}
			return nil
		}

		handleIDs, err := parseInts(handlesFlag)
		if err != nil {
			return fmt.Errorf("--handles: %w", err)
		}
		modes, err := parseModes(modesFlag)
		if err != nil {
			return fmt.Errorf("--modes: %w", err)
		}

		submitResp, err := c.Submit(ctx, &rpc.SubmitRequest{
			CodeletName: codelet,
			HandleIDs:   handleIDs,
			Modes:       modes,
			Priority:    priority,
		})
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		fmt.Printf("submitted task %s, waiting...\n", submitResp.TaskID)

		waitResp, err := c.Wait(ctx, &rpc.WaitRequest{TaskID: submitResp.TaskID})
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		if waitResp.Error != "" {
			return fmt.Errorf("task failed: %s", waitResp.Error)
		}
		fmt.Println("task completed")
		return nil
	},
}

func parseInts(csv string) ([]int, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func parseModes(csv string) ([]uint8, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]uint8, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return nil, err
		}
		out[i] = uint8(n)
	}
	return out, nil
}

func init() {
	submitCmd.Flags().String("addr", "127.0.0.1:7070", "Gateway address")
	submitCmd.Flags().String("codelet", "", "Registered codelet name; omit to list remote codelets instead")
	submitCmd.Flags().String("handles", "", "Comma-separated datawizard handle ids, in codelet buffer order")
	submitCmd.Flags().String("modes", "", "Comma-separated access modes (1=R, 2=W, 3=RW, 4=SCRATCH, 8=REDUX), same order as --handles")
	submitCmd.Flags().Int("priority", 0, "Task priority")
}
