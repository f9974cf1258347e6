package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cpghunt/cpghunt/internal/git"
	"github.com/cpghunt/cpghunt/internal/logger"
)

type RunOptionsFetch struct {
	RepoURL      string
	TargetFolder string
	Branch       string
	SSHKey       string
	Token        string
	Username     string
}

var (
	allArgumentsFetch RunOptionsFetch
	execExampleFetch  = `  # Fetch a repository over HTTPS into the default location
  cpghunt fetch --repo https://github.com/org/project

  # Fetch a branch over SSH into a chosen folder
  cpghunt fetch --repo git@github.com:org/project.git --branch dev --ssh-key ~/.ssh/id_ed25519 -t /tmp/project`
)

var fetchCmd = &cobra.Command{
	Use:                   "fetch --repo URL [--branch BRANCH] [--target-folder DIR] [--ssh-key PATH | --token TOKEN]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               execExampleFetch,
	Short:                 "The command fetches a repository to analyze with hunt",

	RunE: func(cmd *cobra.Command, args []string) error {
		checkArgs := func() error {
			if len(allArgumentsFetch.RepoURL) == 0 {
				return fmt.Errorf("'repo' flag must be specified")
			}
			if len(allArgumentsFetch.SSHKey) != 0 && len(allArgumentsFetch.Token) != 0 {
				return fmt.Errorf("'ssh-key' and 'token' flags are mutually exclusive")
			}
			return nil
		}
		if err := checkArgs(); err != nil {
			return err
		}

		log := logger.NewLogger(AppConfig, "core-fetch")
		client, err := git.New(git.Options{
			SSHKeyPath: allArgumentsFetch.SSHKey,
			Username:   allArgumentsFetch.Username,
			Token:      allArgumentsFetch.Token,
		}, log)
		if err != nil {
			return err
		}

		targetDir := allArgumentsFetch.TargetFolder
		if targetDir == "" {
			targetDir, err = git.TargetDir("repositories", allArgumentsFetch.RepoURL)
			if err != nil {
				return err
			}
		}

		dir, err := client.CloneOrUpdate(context.Background(), allArgumentsFetch.RepoURL, targetDir, allArgumentsFetch.Branch)
		if err != nil {
			log.Error("fetch failed", "repo", allArgumentsFetch.RepoURL, "error", err)
			return err
		}
		log.Info("fetch finished", "repo", allArgumentsFetch.RepoURL, "targetFolder", dir)
		fmt.Printf("Fetched to %s. Analyze it with: cpghunt hunt --source %s\n", dir, dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&allArgumentsFetch.RepoURL, "repo", "r", "", "URL of the repository to fetch")
	fetchCmd.Flags().StringVarP(&allArgumentsFetch.TargetFolder, "target-folder", "t", "", "folder to clone into (default derived from the URL)")
	fetchCmd.Flags().StringVarP(&allArgumentsFetch.Branch, "branch", "b", "", "branch to check out")
	fetchCmd.Flags().StringVar(&allArgumentsFetch.SSHKey, "ssh-key", "", "path of an SSH private key for authentication")
	fetchCmd.Flags().StringVar(&allArgumentsFetch.Token, "token", "", "HTTP token for authentication")
	fetchCmd.Flags().StringVar(&allArgumentsFetch.Username, "username", "", "HTTP username, used with 'token'")
}
