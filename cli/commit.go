package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsahwe/evs/internal/objects"
	"github.com/rsahwe/evs/internal/verbosity"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the current stage to the commit chain",
	Long:  "Commits the current stage to the commit chain.",
	Args:  cobra.NoArgs,
	RunE:  runCommit,
}

var (
	commitMessage string
	commitName    string
	commitEmail   string
)

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "The commit message")
	commitCmd.Flags().StringVarP(&commitName, "name", "n", "", "The committer name")
	commitCmd.Flags().StringVarP(&commitEmail, "email", "e", "", "The committer email")
	commitCmd.MarkFlagRequired("message")
	commitCmd.MarkFlagRequired("name")
	commitCmd.MarkFlagRequired("email")
}

func runCommit(cmd *cobra.Command, args []string) error {
	log := logger()
	r, err := findRepo(log)
	if err != nil {
		return err
	}
	defer closeRepo(r)

	now := time.Now()
	log.Logf(verbosity.All, "Committing by %s <%s> at %v with message of length %d.",
		commitName, commitEmail, now, len(commitMessage))

	info := r.Info()
	h, err := r.Store().Insert(objects.NewCommit(info.Head, info.Stage, commitName, commitEmail, commitMessage, now))
	if err != nil {
		return err
	}
	r.SetHead(h)
	log.Logf(verbosity.Log, "Finished committing.")

	fmt.Printf("HEAD is now at %q.\n", h.String())
	return nil
}
