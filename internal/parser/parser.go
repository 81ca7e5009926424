// Package parser turns raw feed documents into normalized candidate entries.
// It salvages whatever entries it can from malformed documents; a document
// that yields zero entries without a transport error is an empty refresh,
// not a failure.
package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"feedsync/internal/domain"
)

// Result is a parsed feed document: feed-level metadata plus the ordered
// candidate entries.
type Result struct {
	Title   string
	Link    string
	Entries []domain.CandidateEntry
}

type Parser struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "parser")}
}

// Parse extracts candidate entries from data. On a malformed document it
// retries against progressively repaired copies; if every attempt fails it
// returns an empty result together with the parse error so the caller can
// distinguish "empty feed" from "unreadable document".
func (p *Parser) Parse(data []byte) (*Result, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		repaired, rerr := p.parseRepaired(data)
		if rerr != nil {
			return &Result{}, fmt.Errorf("parse feed: %w", err)
		}
		p.logger.Warn("salvaged entries from malformed document",
			"entries", len(repaired.Items),
			"error", err,
		)
		feed = repaired
	}

	res := &Result{
		Title: strings.TrimSpace(feed.Title),
		Link:  strings.TrimSpace(feed.Link),
	}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		res.Entries = append(res.Entries, p.normalize(item))
	}

	return res, nil
}

func (p *Parser) normalize(item *gofeed.Item) domain.CandidateEntry {
	entry := domain.CandidateEntry{
		GUID:  strings.TrimSpace(item.GUID),
		Title: strings.TrimSpace(item.Title),
		Link:  strings.TrimSpace(item.Link),
	}

	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}
	entry.Body = strings.TrimSpace(body)

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		entry.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		entry.PublishedAt = &t
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil && item.Authors[0].Name != "" {
		name := strings.TrimSpace(item.Authors[0].Name)
		entry.Author = &name
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		length, _ := strconv.ParseInt(enc.Length, 10, 64)
		entry.Enclosures = append(entry.Enclosures, domain.Enclosure{
			URL:    enc.URL,
			Type:   enc.Type,
			Length: length,
		})
	}

	return entry
}

// parseRepaired attempts increasingly destructive repairs: first dropping
// control characters that are invalid in XML, then truncating to the last
// complete item so a cut-off tail does not poison the document.
func (p *Parser) parseRepaired(data []byte) (*gofeed.Feed, error) {
	cleaned := dropInvalidXMLChars(data)
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(cleaned))
	if err == nil {
		return feed, nil
	}

	truncated, ok := truncateToLastEntry(cleaned)
	if !ok {
		return nil, err
	}
	return gofeed.NewParser().Parse(bytes.NewReader(truncated))
}

func dropInvalidXMLChars(data []byte) []byte {
	return bytes.Map(func(r rune) rune {
		if r == 0x9 || r == 0xA || r == 0xD {
			return r
		}
		if r < 0x20 || r == 0xFFFD {
			return -1
		}
		return r
	}, data)
}

func truncateToLastEntry(data []byte) ([]byte, bool) {
	for _, closing := range []struct{ item, tail string }{
		{"</item>", "</channel></rss>"},
		{"</entry>", "</feed>"},
	} {
		idx := bytes.LastIndex(data, []byte(closing.item))
		if idx < 0 {
			continue
		}
		out := make([]byte, 0, idx+len(closing.item)+len(closing.tail))
		out = append(out, data[:idx+len(closing.item)]...)
		out = append(out, closing.tail...)
		return out, true
	}
	return nil, false
}
