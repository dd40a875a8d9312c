package store

import (
	"context"
	"testing"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchedFolders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.AddWatchedFolder(ctx, "/home/me/Documents")
	require.NoError(t, err)
	again, err := s.AddWatchedFolder(ctx, "/home/me/Documents")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	b, err := s.AddWatchedFolder(ctx, "/home/me/Notes")
	require.NoError(t, err)

	require.NoError(t, s.SetWatchedFolderEnabled(ctx, b, false))

	folders, err := s.WatchedFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.True(t, folders[0].Enabled)
	assert.False(t, folders[1].Enabled)

	path, err := s.RemoveWatchedFolder(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "/home/me/Documents", path)

	_, err = s.RemoveWatchedFolder(ctx, a)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(s.SetWatchedFolderEnabled(ctx, a, true), apperr.KindNotFound))
}

func TestExclusions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddExclusion(ctx, "  PrivateApp ", ExcludeAppName)
	require.NoError(t, err)
	_, err = s.AddExclusion(ctx, "Incognito", ExcludeWindowTitle)
	require.NoError(t, err)

	_, err = s.AddExclusion(ctx, "", ExcludeAppName)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
	_, err = s.AddExclusion(ctx, "x", "url")
	assert.True(t, apperr.Is(err, apperr.KindConfig))

	list, err := s.Exclusions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "PrivateApp", list[0].Pattern)
	assert.Equal(t, ExcludeWindowTitle, list[1].Type)

	require.NoError(t, s.RemoveExclusion(ctx, id))
	assert.True(t, apperr.Is(s.RemoveExclusion(ctx, id), apperr.KindNotFound))
}
