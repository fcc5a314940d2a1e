package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDropsVolatileParams(t *testing.T) {
	nav := NewNavigator("", nil)
	got, err := nav.Normalize(
		"https://www.example.com/jobs/search/?keywords=go&currentJobId=123&trackingId=abc&origin=JOB_SEARCH_PAGE&start=75#top",
	)
	require.NoError(t, err)
	require.Equal(t, "https://www.example.com/jobs/search/?keywords=go&start=0", got)
}

func TestNormalizeKeepsFilterParams(t *testing.T) {
	nav := NewNavigator("", nil)
	got, err := nav.Normalize(
		"https://www.example.com/jobs/search/?f_C=1441&keywords=engineer&location=Remote",
	)
	require.NoError(t, err)
	require.Equal(t, "https://www.example.com/jobs/search/?f_C=1441&keywords=engineer&location=Remote&start=0", got)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	nav := NewNavigator("", nil)
	first, err := nav.Normalize("https://example.com/s?b=2&a=1&currentJobId=9")
	require.NoError(t, err)
	second, err := nav.Normalize("https://example.com/s?a=1&currentJobId=42&b=2")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestPageURLAdvancesOffset(t *testing.T) {
	nav := NewNavigator("", nil)
	base, err := nav.Normalize("https://example.com/jobs?keywords=go")
	require.NoError(t, err)

	cursor := Cursor{Base: base, PageSize: 25}
	first, err := nav.PageURL(cursor)
	require.NoError(t, err)
	require.Contains(t, first, "start=0")

	second, err := nav.PageURL(cursor.Advance())
	require.NoError(t, err)
	require.Contains(t, second, "start=25")

	third, err := nav.PageURL(cursor.Advance().Advance())
	require.NoError(t, err)
	require.Contains(t, third, "start=50")
}

func TestRecordIDFromURL(t *testing.T) {
	nav := NewNavigator("", nil)

	id, ok := nav.RecordIDFromURL("https://example.com/jobs/search/?currentJobId=4017&start=0")
	require.True(t, ok)
	require.Equal(t, "4017", id)

	id, ok = nav.RecordIDFromURL("https://example.com/jobs/view/998877/?refId=x")
	require.True(t, ok)
	require.Equal(t, "998877", id)

	_, ok = nav.RecordIDFromURL("https://example.com/jobs/search/?keywords=go")
	require.False(t, ok)

	_, ok = nav.RecordIDFromURL("")
	require.False(t, ok)
}
