package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Document is one logical unit of résumé content extracted from the JSON
// corpus: a list entry, a top-level object key, or a whole scalar file.
type Document struct {
	// BaseID is the stable prefix for chunk ids derived from this document.
	BaseID string
	// Source is the file name the document came from, e.g. "skills.json".
	Source string
	// Topic is a human-readable label (entry title, company, map key, ...).
	Topic string
	// Text is the renderable body, prefixed with source and topic headers so
	// the embedding captures provenance.
	Text string
}

// Load reads every *.json file under dir (sorted, so output order is
// deterministic) and expands each into logical documents. Any unreadable or
// malformed file aborts the whole load; the caller must not touch the
// existing index in that case.
func Load(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("no JSON documents in %s", dir)
	}

	var docs []Document
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var payload any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		docs = append(docs, expand(name, payload)...)
	}
	return docs, nil
}

// expand turns one parsed JSON payload into logical documents. Lists yield
// one document per entry, objects one per top-level key, scalars a single
// document covering the file.
func expand(fileName string, payload any) []Document {
	stem := strings.TrimSuffix(fileName, ".json")

	switch value := payload.(type) {
	case []any:
		docs := make([]Document, 0, len(value))
		for i, entry := range value {
			topic := guessLabel(entry)
			if topic == "" {
				topic = fmt.Sprintf("%s-%d", stem, i+1)
			}
			docs = append(docs, Document{
				BaseID: fmt.Sprintf("%s-%s", stem, Slugify(topic)),
				Source: fileName,
				Topic:  topic,
				Text:   renderText(stem, topic, entry),
			})
		}
		return docs
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		docs := make([]Document, 0, len(keys))
		for _, k := range keys {
			docs = append(docs, Document{
				BaseID: fmt.Sprintf("%s-%s", stem, Slugify(k)),
				Source: fileName,
				Topic:  k,
				Text:   renderText(stem, k, value[k]),
			})
		}
		return docs
	default:
		return []Document{{
			BaseID: stem + "-all",
			Source: fileName,
			Topic:  stem,
			Text:   strings.TrimSpace(fmt.Sprintf("Source: %s\n\n%s", stem, renderBody(value))),
		}}
	}
}

func renderText(stem, topic string, entry any) string {
	return strings.TrimSpace(fmt.Sprintf("Source: %s\nTopic: %s\n\n%s", stem, topic, renderBody(entry)))
}

// guessLabel picks a display label out of a JSON object, trying the keys the
// résumé documents actually use.
func guessLabel(entry any) string {
	obj, ok := entry.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"title", "company", "name", "question", "label", "role"} {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func renderBody(entry any) string {
	switch entry.(type) {
	case map[string]any, []any:
		out, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", entry)
		}
		return string(out)
	default:
		return fmt.Sprintf("%v", entry)
	}
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slugify lowercases and strips non-alphanumerics so topics become stable id
// fragments.
func Slugify(value string) string {
	slug := strings.ToLower(strings.Trim(slugPattern.ReplaceAllString(value, "-"), "-"))
	if slug == "" {
		return "entry"
	}
	return slug
}

// Profile holds the fields of the profile document used to render the
// concierge system prompt.
type Profile struct {
	Name     string
	Headline string
	Location string
	Summary  string
}

// LoadProfile reads profile.json from the corpus directory. Missing fields
// fall back to neutral defaults so the relay can still serve.
func LoadProfile(dir string) (Profile, error) {
	p := Profile{
		Name:     "the candidate",
		Headline: "software engineer",
		Location: "Remote",
		Summary:  "Use the supplied résumé context to answer questions.",
	}

	raw, err := os.ReadFile(filepath.Join(dir, "profile.json"))
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return p, fmt.Errorf("parse profile: %w", err)
	}

	if v, ok := payload["name"].(string); ok && v != "" {
		p.Name = v
	}
	if v, ok := payload["headline"].(string); ok && v != "" {
		p.Headline = v
	}
	if v, ok := payload["location"].(string); ok && v != "" {
		p.Location = v
	}
	if v, ok := payload["summary_en"].(string); ok && v != "" {
		p.Summary = v
	}
	return p, nil
}
