package parser

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Providers change their response shape without notice, so record location is
// an ordered chain of strategies tried against the decoded payload,
// first-match-wins. The recursive scan at the end is the safety net: it finds
// record-shaped objects at any depth without assuming the primary layout.

type recordExtractor interface {
	extract(v any) ([]map[string]any, bool)
}

var recordExtractors = []recordExtractor{
	containerListExtractor{keys: []string{"tweets", "data"}},
	sectionListExtractor{section: "timeline", keys: []string{"items", "instructions", "entries"}},
	deepScanExtractor{},
}

// extractRecords locates candidate records inside a decoded provider payload.
func extractRecords(v any) []map[string]any {
	for _, ex := range recordExtractors {
		if recs, ok := ex.extract(v); ok {
			return recs
		}
	}
	return nil
}

// containerListExtractor matches a flat list under one of several known
// top-level keys.
type containerListExtractor struct {
	keys []string
}

func (e containerListExtractor) extract(v any) ([]map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range e.keys {
		if list, ok := obj[key].([]any); ok {
			return onlyRecords(list), true
		}
	}
	return nil, false
}

// sectionListExtractor matches a list nested one level down inside a named
// sub-object.
type sectionListExtractor struct {
	section string
	keys    []string
}

func (e sectionListExtractor) extract(v any) ([]map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	section, ok := obj[e.section].(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range e.keys {
		if list, ok := section[key].([]any); ok {
			return onlyRecords(list), true
		}
	}
	return nil, false
}

// deepScanExtractor walks the whole tree and collects every object exposing
// both an identifier-like and a content-like field, regardless of depth.
type deepScanExtractor struct{}

var (
	scanIDKeys      = []string{"id", "rest_id", "conversationId"}
	scanContentKeys = []string{"text", "twitterUrl", "url", "createdAt"}
)

func (deepScanExtractor) extract(v any) ([]map[string]any, bool) {
	recs := collectRecords(v, nil)
	return recs, len(recs) > 0
}

func collectRecords(v any, acc []map[string]any) []map[string]any {
	switch node := v.(type) {
	case map[string]any:
		if hasAnyKey(node, scanIDKeys) && hasAnyKey(node, scanContentKeys) {
			acc = append(acc, node)
		}
		for _, child := range node {
			acc = collectRecords(child, acc)
		}
	case []any:
		for _, child := range node {
			acc = collectRecords(child, acc)
		}
	}
	return acc
}

func hasAnyKey(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func onlyRecords(list []any) []map[string]any {
	recs := make([]map[string]any, 0, len(list))
	for _, el := range list {
		if rec, ok := el.(map[string]any); ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

// --- Per-record field resolution ---

// recordID resolves the stable identifier, trying direct keys first and the
// legacy sub-object some providers still nest the canonical payload in.
func recordID(rec map[string]any) string {
	if id := stringField(rec, "rest_id", "id", "id_str", "conversationId", "tweetId"); id != "" {
		return id
	}
	if legacy, ok := rec["legacy"].(map[string]any); ok {
		return stringField(legacy, "id_str")
	}
	return ""
}

func recordText(rec map[string]any) string {
	if text := stringField(rec, "text", "full_text"); text != "" {
		return text
	}
	if legacy, ok := rec["legacy"].(map[string]any); ok {
		if text := stringField(legacy, "full_text", "text"); text != "" {
			return text
		}
	}
	return stringField(rec, "displayText", "display_text")
}

func recordURL(rec map[string]any) string {
	return stringField(rec, "url", "twitterUrl")
}

// recordAuthor resolves the author handle, lowercased. Providers put it in an
// author/user sub-object, at top level, or only inside the permalink.
func recordAuthor(rec map[string]any) string {
	for _, key := range []string{"author", "user", "user_extended"} {
		if sub, ok := rec[key].(map[string]any); ok {
			if h := stringField(sub, "userName", "username", "screen_name", "screenName", "handle"); h != "" {
				return strings.ToLower(h)
			}
		}
	}
	if h := stringField(rec, "author_username", "authorUserName", "userName", "username", "screen_name"); h != "" {
		return strings.ToLower(h)
	}
	if h := handleFromPermalink(recordURL(rec)); h != "" {
		return h
	}
	return ""
}

// handleFromPermalink extracts the account handle from a status permalink
// such as https://x.com/acme/status/42.
func handleFromPermalink(raw string) string {
	if raw == "" || !strings.Contains(raw, "/status/") {
		return ""
	}
	rest := raw
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}

// stringField returns the first non-empty string value among the given keys.
// Payloads are decoded with UseNumber, so numeric identifiers arrive as
// json.Number and keep every digit; snowflake-scale ids exceed float64
// precision and would collide after rounding.
func stringField(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
