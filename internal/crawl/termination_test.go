package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignatureOfExcludesPromoted(t *testing.T) {
	detector := NewDetector(3)
	anchors := []Anchor{
		{ID: "p1", Promoted: true},
		{ID: "a"},
		{ID: "b"},
		{ID: "p2", Promoted: true},
		{ID: "c"},
		{ID: "d"},
	}
	require.Equal(t, Signature{"a", "b", "c"}, detector.SignatureOf(anchors))
}

func TestSignatureOfFallsBackToPromoted(t *testing.T) {
	detector := NewDetector(3)
	anchors := []Anchor{
		{ID: "p1", Promoted: true},
		{ID: "p2", Promoted: true},
	}
	require.Equal(t, Signature{"p1", "p2"}, detector.SignatureOf(anchors))
}

func TestSignatureOfSkipsEmptyIDs(t *testing.T) {
	detector := NewDetector(5)
	anchors := []Anchor{{ID: ""}, {ID: "a"}, {ID: ""}, {ID: "b"}}
	require.Equal(t, Signature{"a", "b"}, detector.SignatureOf(anchors))
}

func TestHasEnded(t *testing.T) {
	detector := NewDetector(3)

	require.True(t, detector.HasEnded(nil, nil, true), "empty marker is always conclusive")
	require.False(t, detector.HasEnded(nil, Signature{"a"}, false), "first page never repeats")
	require.True(t, detector.HasEnded(Signature{"a", "b"}, Signature{"a", "b"}, false))
	require.False(t, detector.HasEnded(Signature{"a", "b"}, Signature{"a", "c"}, false))
	require.False(t, detector.HasEnded(Signature{}, Signature{}, false), "two empty signatures are not a repeat")
}
