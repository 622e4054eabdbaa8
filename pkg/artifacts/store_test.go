package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasrisk/rulegate/pkg/errdefs"
)

func testCoords(version int) Coordinates {
	return Coordinates{
		Environment:  "production",
		Country:      "SE",
		PartitionKey: "CARD_MONITORING",
		Version:      version,
	}
}

func TestCoordinates_Keys(t *testing.T) {
	c := testCoords(7)
	assert.Equal(t, "production/SE/CARD_MONITORING/v7/ruleset.json", c.ArtifactKey())
	assert.Equal(t, "production/SE/CARD_MONITORING/current.json", c.PointerKey())
}

func TestFileStore_ArtifactRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte(`{"rulesetId":"rs-1"}`)
	uri, err := store.PutArtifact(ctx, testCoords(1), data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.True(t, strings.HasSuffix(uri, filepath.FromSlash("production/SE/CARD_MONITORING/v1/ruleset.json")))

	got, err := store.GetArtifact(ctx, testCoords(1))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFileStore_PutArtifactIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte(`{"v":1}`)
	uri1, err := store.PutArtifact(ctx, testCoords(1), data)
	require.NoError(t, err)
	uri2, err := store.PutArtifact(ctx, testCoords(1), data)
	require.NoError(t, err)
	assert.Equal(t, uri1, uri2)
}

func TestFileStore_PointerOverwrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.WritePointer(ctx, testCoords(1), []byte(`{"ruleset_version":1}`))
	require.NoError(t, err)
	uri, err := store.WritePointer(ctx, testCoords(2), []byte(`{"ruleset_version":2}`))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, filepath.FromSlash("production/SE/CARD_MONITORING/current.json")))

	got, err := store.GetPointer(ctx, testCoords(2))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ruleset_version":2}`, string(got))
}

func TestFileStore_GetPointer_NotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetPointer(context.Background(), testCoords(1))
	assert.True(t, errdefs.IsKind(err, errdefs.KindNotFound))
}

func TestFileStore_NoPartialWrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = store.PutArtifact(context.Background(), testCoords(1), []byte(`{}`))
	require.NoError(t, err)

	// The temp file used for the atomic write must not survive.
	var leftovers []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && strings.HasSuffix(path, ".tmp") {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestNewStoreFromEnv_DefaultsToFilesystem(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "")
	t.Setenv("DATA_DIR", t.TempDir())

	store, err := NewStoreFromEnv(context.Background())
	require.NoError(t, err)
	_, ok := store.(*FileStore)
	assert.True(t, ok)
}

func TestNewStoreFromEnv_UnknownType(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "tape")

	_, err := NewStoreFromEnv(context.Background())
	assert.Error(t, err)
}

func TestNewStoreFromEnv_S3RequiresBucket(t *testing.T) {
	t.Setenv("ARTIFACT_STORAGE_TYPE", "s3")
	t.Setenv("ARTIFACT_S3_BUCKET", "")

	_, err := NewStoreFromEnv(context.Background())
	assert.Error(t, err)
}
