package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rsahwe/evs/internal/hash"
	"github.com/rsahwe/evs/internal/repo"
	"github.com/rsahwe/evs/internal/verbosity"
)

var initCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Initialize a repository",
	Long:  "Initializes an evs repository in the given directory (default \".\").",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the store for validity and completeness",
	Long:  "Verifies every object in the store and the reachability of head and stage.",
	RunE:  runCheck,
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Collect unreferenced store objects",
	Long:  "Collects all store objects unreachable from head and stage and deletes them.",
	RunE:  runGC,
}

func runInit(cmd *cobra.Command, args []string) error {
	log := logger()
	path := "."
	if len(args) == 1 {
		path = args[0]
	}

	log.Logf(verbosity.Log, "Creating repository at %q...", path)
	r, err := repo.Create(path, log)
	if err != nil {
		return err
	}
	log.Logf(verbosity.Log, "Created repository.")
	closeRepo(r)

	fmt.Println("Repository initialized successfully.")
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	log := logger()
	r, err := findRepo(log)
	if err != nil {
		return err
	}
	defer closeRepo(r)

	info := r.Info()
	if _, err := r.Store().Check([]hash.Hash{info.Head, info.Stage}); err != nil {
		return err
	}

	fmt.Println("Repository checked successfully.")
	return nil
}

func runGC(cmd *cobra.Command, args []string) error {
	log := logger()
	r, err := findRepo(log)
	if err != nil {
		return err
	}
	defer closeRepo(r)

	info := r.Info()
	result, err := r.Store().Check([]hash.Hash{info.Head, info.Stage})
	if err != nil {
		return err
	}

	removed := 0
	for h, count := range result.DepCount {
		if count != 0 {
			continue
		}
		log.Logf(verbosity.Trace, "Removing unreferenced object %q.", h.String())
		if err := r.Store().Remove(h); err != nil {
			return err
		}
		removed++
	}
	log.Logf(verbosity.Log, "Finished collecting garbage.")

	fmt.Printf("Removed %d unreferenced objects.\n", removed)
	return nil
}
