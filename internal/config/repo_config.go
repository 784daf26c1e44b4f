// Package config reads repo-specific configuration from git config.
package config

import (
	"fmt"

	"grove.dev/grove/internal/git"
)

const (
	// ConfigSection is the git config section grove reads its settings from.
	ConfigSection = "grove"

	// MainBranchKey selects the trunk branch whose ancestry is excluded from
	// the visible commit set.
	MainBranchKey = "mainBranch"

	// preserveTimestampsKey, under the restack subsection, keeps committer
	// timestamps unchanged when commits are recreated during a restack.
	preserveTimestampsKey = "preserveTimestamps"
)

// MainBranchName returns the configured trunk branch name. Without explicit
// configuration it defaults to master, falling back to main when no master
// branch exists.
func MainBranchName(repo *git.Repository) (string, error) {
	cfg, err := repo.Config()
	if err != nil {
		return "", fmt.Errorf("failed to read git config: %w", err)
	}

	if name := cfg.Raw.Section(ConfigSection).Option(MainBranchKey); name != "" {
		return name, nil
	}

	for _, candidate := range []string{"master", "main"} {
		_, ok, err := repo.ReadRef(git.BranchRefPrefix + candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}
	return "master", nil
}

// MainBranchRef returns the full ref name of the trunk branch.
func MainBranchRef(repo *git.Repository) (string, error) {
	name, err := MainBranchName(repo)
	if err != nil {
		return "", err
	}
	return git.BranchRefPrefix + name, nil
}

// SetMainBranch records the trunk branch name in git config.
func SetMainBranch(repo *git.Repository, name string) error {
	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("failed to read git config: %w", err)
	}
	cfg.Raw.Section(ConfigSection).SetOption(MainBranchKey, name)
	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("failed to write git config: %w", err)
	}
	return nil
}

// PreserveTimestamps reports whether restack should keep the original
// committer timestamps on recreated commits. Defaults to false.
func PreserveTimestamps(repo *git.Repository) bool {
	cfg, err := repo.Config()
	if err != nil {
		return false
	}
	value := cfg.Raw.Section(ConfigSection).Subsection("restack").Option(preserveTimestampsKey)
	return value == "true" || value == "1"
}
