package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rsahwe/evs/internal/evserr"
	"github.com/rsahwe/evs/internal/objects"
	"github.com/rsahwe/evs/internal/refs"
	"github.com/rsahwe/evs/internal/verbosity"
)

var logCmd = &cobra.Command{
	Use:   "log [REF]",
	Short: "Print the commit log of a commit",
	Long:  "Prints the commit log starting from the given commit (default HEAD).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLog,
}

var logLimit int

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "l", 5, "The maximum number of commits to log")
}

func runLog(cmd *cobra.Command, args []string) error {
	log := logger()
	r, err := findRepo(log)
	if err != nil {
		return err
	}
	defer closeRepo(r)

	ref := "HEAD"
	if len(args) == 1 {
		ref = args[0]
	}
	current, err := refs.Resolve(r.Store(), r.Info().Head, ref)
	if err != nil {
		return err
	}

	for printed := 0; printed < logLimit; printed++ {
		h, obj, err := r.Store().Lookup(current)
		if err != nil {
			return err
		}
		if obj.Kind == objects.KindNull {
			// the root of history; nothing left to print
			break
		}
		if obj.Kind != objects.KindCommit {
			return &evserr.NotACommit{Hash: h.String()}
		}
		fmt.Printf("%q\n%s\n", h.String(), obj.Render())
		current = obj.Commit.Parent.String()
	}
	log.Logf(verbosity.Log, "Finished printing log.")
	return nil
}
