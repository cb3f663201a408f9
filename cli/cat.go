package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rsahwe/evs/internal/evserr"
	"github.com/rsahwe/evs/internal/objects"
	"github.com/rsahwe/evs/internal/refs"
	"github.com/rsahwe/evs/internal/verbosity"
)

var catCmd = &cobra.Command{
	Use:   "cat REF",
	Short: "Print the given object from the store",
	Long:  "Prints the given object from the store.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

var catRaw bool

func init() {
	catCmd.Flags().BoolVarP(&catRaw, "raw", "r", false, "Prints the raw bytes of the object's canonical encoding")
}

func runCat(cmd *cobra.Command, args []string) error {
	log := logger()
	r, err := findRepo(log)
	if err != nil {
		return err
	}
	defer closeRepo(r)

	full, err := refs.Resolve(r.Store(), r.Info().Head, args[0])
	if err != nil {
		return err
	}
	h, obj, err := r.Store().Lookup(full)
	if err != nil {
		return err
	}
	log.Logf(verbosity.Log, "Printing object %q:", h.String())

	if catRaw {
		data, err := objects.Encode(obj)
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(data); err != nil {
			return &evserr.PathError{Op: "write", Path: "stdout", Err: err}
		}
		return nil
	}

	fmt.Println(obj.Render())
	return nil
}
