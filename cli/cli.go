// Package cli wires the evs subcommands onto a cobra root command. Each
// command body discovers the repository, runs one high-level operation
// against the store and stage engine, and defers the writeback of
// repository info to scope exit.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rsahwe/evs/internal/repo"
	"github.com/rsahwe/evs/internal/verbosity"
)

const EvsVersion = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "evs",
	Short: "Ev source control",
	Long:  `Ev source control. Basically a git clone.`,
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("evs version %s\n", EvsVersion)
			os.Exit(0)
		}
		cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	version      bool
	verboseCount int
)

func init() {
	rootCmd.Flags().BoolVar(&version, "version", false, "Use this to get the version of evs")
	rootCmd.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "Increases the verbosity level by one each time it appears")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(subCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(gcCmd)
}

func logger() *verbosity.Logger {
	return verbosity.New(verbosity.FromFlagCount(verboseCount))
}

// findRepo locates and locks the repository by walking upward from the
// current directory.
func findRepo(log *verbosity.Logger) (*repo.Repository, error) {
	log.Logf(verbosity.Log, "Searching for repository starting from %q:", ".")
	r, err := repo.Find(".", log)
	if err != nil {
		return nil, err
	}
	log.Logf(verbosity.Log, "Found repository at %q.", r.RepoDir())
	return r, nil
}

// closeRepo performs the deferred writeback and unlock. A failure here
// cannot be recovered (the scope is exiting), so it is only reported.
func closeRepo(r *repo.Repository) {
	if err := r.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Writing back repository info failed: %v\n", err)
	}
}
