// Command rch-worker is the thin process entrypoint a Host invokes over
// SSH as a forced-command: "rch-worker xcode rpc" reads one JSON request
// from stdin and writes one JSON response to stdout, then exits. It owns
// no transport or session state of its own — each invocation builds a
// fresh, empty worker.State; nothing is read back from disk, so leases,
// jobs and sources do not carry over from one invocation to the next.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paulrobinshaw/rch-xcode/pkg/console"
	"github.com/paulrobinshaw/rch-xcode/pkg/protocol"
	"github.com/paulrobinshaw/rch-xcode/pkg/worker"
)

var version = "dev"

var maxConcurrentJobs int

var rootCmd = &cobra.Command{
	Use:     "rch-worker",
	Short:   "Worker-side RPC entrypoint for rch-xcode",
	Version: version,
}

var xcodeCmd = &cobra.Command{
	Use:   "xcode",
	Short: "Xcode backend operations",
}

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Serve a single RPC request read from stdin, writing the response to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRPC(os.Stdin, os.Stdout, maxConcurrentJobs)
	},
}

func runRPC(in *os.File, out *os.File, capacity int) error {
	state := worker.NewState(capacity)
	handler := worker.NewHandler(state, worker.Inventory{Capacity: capacity}, []string{"tail"})

	reader := bufio.NewReader(in)
	req, rerr := protocol.ReadRequest(reader)
	if rerr != nil {
		resp := protocol.NewErrorResponse(0, "", rerr)
		return protocol.WriteResponse(out, resp)
	}

	resp := handler.Dispatch(req)
	return protocol.WriteResponse(out, resp)
}

func init() {
	rootCmd.PersistentFlags().IntVar(&maxConcurrentJobs, "max-concurrent-jobs", 1, "Maximum jobs this worker runs at once")
	xcodeCmd.AddCommand(rpcCmd)
	rootCmd.AddCommand(xcodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(1)
	}
}
