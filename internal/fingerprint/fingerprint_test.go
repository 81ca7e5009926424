package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"feedsync/internal/domain"
)

func TestStoryHash_StableAcrossRuns(t *testing.T) {
	entry := domain.CandidateEntry{
		GUID:  "https://example.com/post/1",
		Title: "A title",
		Body:  "A body",
	}
	require.Equal(t, StoryHash(5, entry), StoryHash(5, entry))
}

func TestStoryHash_CarriesFeedPrefix(t *testing.T) {
	entry := domain.CandidateEntry{GUID: "guid-1"}
	hash := StoryHash(5, entry)
	require.True(t, BelongsToFeed(hash, 5))
	require.False(t, BelongsToFeed(hash, 6))
	require.NotEqual(t, hash, StoryHash(6, entry))
}

func TestStoryHash_InsensitiveToContentEdits(t *testing.T) {
	a := domain.CandidateEntry{GUID: "guid-1", Title: "Original title", Body: "Original body"}
	b := domain.CandidateEntry{GUID: "guid-1", Title: "Original titlf", Body: "Original bodz"}
	require.Equal(t, StoryHash(5, a), StoryHash(5, b))
}

func TestStoryHash_InsensitiveToWhitespace(t *testing.T) {
	a := domain.CandidateEntry{GUID: "  guid-1 "}
	b := domain.CandidateEntry{GUID: "guid-1"}
	require.Equal(t, StoryHash(5, a), StoryHash(5, b))
}

func TestStoryHash_SensitiveToGUIDChange(t *testing.T) {
	a := domain.CandidateEntry{GUID: "guid-1", Title: "Same"}
	b := domain.CandidateEntry{GUID: "guid-2", Title: "Same"}
	require.NotEqual(t, StoryHash(5, a), StoryHash(5, b))
}

func TestStoryHash_FallsBackToLinkThenTitle(t *testing.T) {
	byLink := domain.CandidateEntry{Link: "https://Example.com/post/1/", Title: "One"}
	byLinkEdited := domain.CandidateEntry{Link: "https://example.com/post/1", Title: "One edited"}
	require.Equal(t, StoryHash(5, byLink), StoryHash(5, byLinkEdited))

	byTitle := domain.CandidateEntry{Title: "Only  a   title"}
	byTitleNorm := domain.CandidateEntry{Title: "Only a title"}
	require.Equal(t, StoryHash(5, byTitle), StoryHash(5, byTitleNorm))
}

func TestNormalizeSpace(t *testing.T) {
	require.Equal(t, "a b c", NormalizeSpace("  a\t b\n\nc "))
	require.Equal(t, "", NormalizeSpace("   "))
}

func TestNormalizeLink(t *testing.T) {
	require.Equal(t, "https://example.com/post", NormalizeLink("HTTPS://Example.COM/post/"))
	require.Equal(t, "https://example.com/post", NormalizeLink("https://example.com/post#frag"))
	require.Equal(t, "", NormalizeLink(""))
}
