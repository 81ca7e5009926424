package parser

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const rssDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <link>https://example.com</link>
    <item>
      <title>First post</title>
      <link>https://example.com/post/1</link>
      <guid>https://example.com/post/1</guid>
      <description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description>
      <author>alice@example.com (Alice)</author>
      <pubDate>Thu, 19 Feb 2026 08:00:00 +0000</pubDate>
      <enclosure url="https://example.com/1.mp3" length="1234" type="audio/mpeg"/>
    </item>
    <item>
      <title>  Second post  </title>
      <link>https://example.com/post/2</link>
      <description>plain text</description>
    </item>
  </channel>
</rss>`

const atomDoc = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Blog</title>
  <link href="https://example.com"/>
  <entry>
    <id>tag:example.com,2026:entry-1</id>
    <title>Atom entry</title>
    <link href="https://example.com/atom/1"/>
    <summary>An atom summary</summary>
    <updated>2026-02-19T09:00:00Z</updated>
  </entry>
</feed>`

func testParser(t *testing.T) *Parser {
	t.Helper()
	return New(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestParse_RSS(t *testing.T) {
	res, err := testParser(t).Parse([]byte(rssDoc))
	require.NoError(t, err)
	require.Equal(t, "Example Blog", res.Title)
	require.Equal(t, "https://example.com", res.Link)
	require.Len(t, res.Entries, 2)

	first := res.Entries[0]
	require.Equal(t, "https://example.com/post/1", first.GUID)
	require.Equal(t, "First post", first.Title)
	require.Equal(t, "<p>Hello <b>world</b></p>", first.Body)
	require.NotNil(t, first.PublishedAt)
	require.Equal(t, time.Date(2026, 2, 19, 8, 0, 0, 0, time.UTC), *first.PublishedAt)
	require.Len(t, first.Enclosures, 1)
	require.Equal(t, int64(1234), first.Enclosures[0].Length)

	second := res.Entries[1]
	require.Equal(t, "Second post", second.Title)
	require.Empty(t, second.GUID)
	require.Nil(t, second.PublishedAt)
}

func TestParse_Atom(t *testing.T) {
	res, err := testParser(t).Parse([]byte(atomDoc))
	require.NoError(t, err)
	require.Equal(t, "Atom Blog", res.Title)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "tag:example.com,2026:entry-1", res.Entries[0].GUID)
	require.Equal(t, "An atom summary", res.Entries[0].Body)
}

func TestParse_TruncatedDocumentSalvagesEntries(t *testing.T) {
	// Cut the document off in the middle of the second item.
	cut := rssDoc[:strings.LastIndex(rssDoc, "<item>")+20]
	res, err := testParser(t).Parse([]byte(cut))
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "First post", res.Entries[0].Title)
}

func TestParse_InvalidControlCharsSalvaged(t *testing.T) {
	dirty := strings.Replace(rssDoc, "plain text", "plain\x01text", 1)
	res, err := testParser(t).Parse([]byte(dirty))
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
}

func TestParse_UnreadableDocumentReturnsError(t *testing.T) {
	res, err := testParser(t).Parse([]byte("not a feed at all"))
	require.Error(t, err)
	require.NotNil(t, res)
	require.Empty(t, res.Entries)
}

func TestParse_EmptyFeedIsNotAnError(t *testing.T) {
	empty := `<?xml version="1.0"?><rss version="2.0"><channel><title>Empty</title></channel></rss>`
	res, err := testParser(t).Parse([]byte(empty))
	require.NoError(t, err)
	require.Empty(t, res.Entries)
	require.Equal(t, "Empty", res.Title)
}
