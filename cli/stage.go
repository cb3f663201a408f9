package cli

import (
	"github.com/spf13/cobra"

	"github.com/rsahwe/evs/internal/stage"
	"github.com/rsahwe/evs/internal/verbosity"
)

var addCmd = &cobra.Command{
	Use:   "add PATH...",
	Short: "Add files and directories to the store and stage",
	Long:  "Adds the given files and directories to the evs store and stage.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

var subCmd = &cobra.Command{
	Use:   "sub PATH...",
	Short: "Remove files and directories from the stage",
	Long:  "Removes the given files and directories from the evs stage.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSub,
}

func runAdd(cmd *cobra.Command, args []string) error {
	log := logger()
	r, err := findRepo(log)
	if err != nil {
		return err
	}
	defer closeRepo(r)

	log.Logf(verbosity.All, "Adding %d paths:", len(args))
	for _, path := range args {
		newStage, err := stage.Add(r.Store(), r.WorkspaceDir(), r.RepoDir(), r.Info().Stage, path)
		if err != nil {
			return err
		}
		r.SetStage(newStage)
		log.Logf(verbosity.Log, "Added %q.", path)
	}
	log.Logf(verbosity.Log, "Finished adding.")
	return nil
}

func runSub(cmd *cobra.Command, args []string) error {
	log := logger()
	r, err := findRepo(log)
	if err != nil {
		return err
	}
	defer closeRepo(r)

	log.Logf(verbosity.All, "Removing %d paths:", len(args))
	for _, path := range args {
		newStage, err := stage.Sub(r.Store(), r.WorkspaceDir(), r.RepoDir(), r.Info().Stage, path)
		if err != nil {
			return err
		}
		r.SetStage(newStage)
		log.Logf(verbosity.Log, "Removed %q.", path)
	}
	log.Logf(verbosity.Log, "Finished removing.")
	return nil
}
