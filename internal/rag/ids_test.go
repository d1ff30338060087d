package rag

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("doc1", 0)
	assert.Equal(t, a, PointID("doc1", 0))
	assert.NotEqual(t, a, PointID("doc1", 1))
	assert.NotEqual(t, a, PointID("doc2", 0))

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestPointID_MatchesUUID5OverURLNamespace(t *testing.T) {
	want := uuid.NewSHA1(uuid.NameSpaceURL, []byte("report.pdf:3")).String()
	assert.Equal(t, want, PointID("report.pdf", 3))
}

func TestPointIDs(t *testing.T) {
	ids := PointIDs("doc", 3)
	require.Len(t, ids, 3)
	assert.Equal(t, PointID("doc", 2), ids[2])
	assert.Empty(t, PointIDs("doc", 0))
}
