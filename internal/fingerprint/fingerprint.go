// Package fingerprint computes the stable identity hash for stories.
//
// The hash is derived from the entry's guid when present, otherwise its
// normalized link, otherwise its normalized title. The body never enters the
// hash, so a content edit changes what a story says but not which story it
// is. Guid match is authoritative for identity; title only contributes when
// both guid and link are missing.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"feedsync/internal/domain"
)

// hashLen is the number of hex digits of the digest kept in the public
// story hash.
const hashLen = 12

// StoryHash returns the dedup/identity fingerprint for an entry of the given
// feed, in the form "<feedID>:<hex>". It is deterministic and insensitive to
// surrounding whitespace and trivial link casing.
func StoryHash(feedID int64, entry domain.CandidateEntry) string {
	identity := strings.TrimSpace(entry.GUID)
	if identity == "" {
		identity = NormalizeLink(entry.Link)
	}
	if identity == "" {
		identity = NormalizeSpace(entry.Title)
	}

	sum := sha1.Sum([]byte(identity))
	return fmt.Sprintf("%d:%s", feedID, hex.EncodeToString(sum[:])[:hashLen])
}

// BelongsToFeed reports whether hash carries the given feed's prefix. Used to
// tell story hashes apart from legacy guids in read-state payloads.
func BelongsToFeed(hash string, feedID int64) bool {
	return strings.HasPrefix(hash, fmt.Sprintf("%d:", feedID))
}

// NormalizeSpace collapses all runs of whitespace to single spaces and trims
// the ends, so byte-level whitespace and encoding artifacts do not register
// as changes.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeLink canonicalizes a feed entry link for identity purposes:
// scheme and host are lowercased and a single trailing slash is dropped.
func NormalizeLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(link, "/")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Fragment = ""
	return u.String()
}
