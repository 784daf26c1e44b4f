package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grove.dev/grove/internal/config"
	"grove.dev/grove/testhelpers"
)

func TestMainBranchNameDefaults(t *testing.T) {
	t.Run("prefers master when present", func(t *testing.T) {
		repo := testhelpers.NewTestRepo(t)
		trunk := repo.CommitFiles("trunk", map[string]string{"f": "1"})
		repo.SetBranch("master", trunk)
		repo.SetBranch("main", trunk)

		name, err := config.MainBranchName(repo.Repo)
		require.NoError(t, err)
		assert.Equal(t, "master", name)
	})

	t.Run("falls back to main", func(t *testing.T) {
		repo := testhelpers.NewTestRepo(t)
		trunk := repo.CommitFiles("trunk", map[string]string{"f": "1"})
		repo.SetBranch("main", trunk)

		name, err := config.MainBranchName(repo.Repo)
		require.NoError(t, err)
		assert.Equal(t, "main", name)
	})

	t.Run("defaults to master in an empty repo", func(t *testing.T) {
		repo := testhelpers.NewTestRepo(t)

		name, err := config.MainBranchName(repo.Repo)
		require.NoError(t, err)
		assert.Equal(t, "master", name)
	})
}

func TestSetMainBranchOverridesDetection(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	trunk := repo.CommitFiles("trunk", map[string]string{"f": "1"})
	repo.SetBranch("master", trunk)

	require.NoError(t, config.SetMainBranch(repo.Repo, "develop"))

	name, err := config.MainBranchName(repo.Repo)
	require.NoError(t, err)
	assert.Equal(t, "develop", name)
}

func TestPreserveTimestampsDefaultsFalse(t *testing.T) {
	repo := testhelpers.NewTestRepo(t)
	assert.False(t, config.PreserveTimestamps(repo.Repo))
}
