package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suburbmates-workers/pkg/registry"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, splitList(" A, ,B "))
	assert.Equal(t, []string{}, splitList(""))
}

func TestAddUpdateValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity-registry.json")

	require.NoError(t, runAdd([]string{
		"-path", path,
		"-id", "review-listing",
		"-displayName", "Review Listing",
		"-description", "Approves or rejects a listing",
		"-category", "listings",
		"-errorCodes", "LISTING_NOT_FOUND, INVALID_TRANSITION",
	}))
	require.NoError(t, runUpdate([]string{"-path", path, "-id", "review-listing", "-field", "status", "-value", "completed"}))
	require.NoError(t, runValidate([]string{"-path", path}))
	require.NoError(t, runList([]string{"-path", path}))

	reg, err := registry.LoadRegistry(path)
	require.NoError(t, err)
	a, ok := reg.Find("review-listing")
	require.True(t, ok)
	assert.Equal(t, registry.StatusCompleted, a.ImplementationStatus)
	assert.Equal(t, []string{"LISTING_NOT_FOUND", "INVALID_TRANSITION"}, a.ErrorCodes)
}

func TestUpdate_RejectsInvalidResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity-registry.json")
	require.NoError(t, runAdd([]string{
		"-path", path, "-id", "search-listings", "-displayName", "Search Listings",
		"-description", "Searches listings", "-category", "search",
	}))

	err := runUpdate([]string{"-path", path, "-id", "search-listings", "-field", "status", "-value", "shipped"})
	assert.ErrorContains(t, err, "unknown status")

	err = runUpdate([]string{"-path", path, "-id", "missing", "-field", "status", "-value", "completed"})
	assert.ErrorContains(t, err, "not found")
}

func TestAdd_RejectsDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity-registry.json")
	args := []string{
		"-path", path, "-id", "moderate-content", "-displayName", "Moderate Content",
		"-description", "Scores a submission", "-category", "moderation",
	}
	require.NoError(t, runAdd(args))
	assert.ErrorContains(t, runAdd(args), "already exists")
}
