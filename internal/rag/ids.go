package rag

import (
	"fmt"

	"github.com/google/uuid"
)

// PointID returns the stable point id for chunk index of sourceID:
// a UUIDv5 in the URL namespace over "{sourceID}:{index}".
func PointID(sourceID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%d", sourceID, index))).String()
}

// PointIDs returns the ids for the first n chunks of sourceID.
func PointIDs(sourceID string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = PointID(sourceID, i)
	}
	return out
}
