// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit extracts statute citations from persona output and verifies
// each one against the law index. Unverifiable citations flag the turn so
// the engine can regenerate it.
package audit

import (
	"fmt"
	"regexp"
	"strings"
)

// CitationKind distinguishes statute sections from court-rule references.
type CitationKind string

const (
	KindStatuteSection CitationKind = "statute_section"
	KindCourtRule      CitationKind = "court_rule"
)

// Citation is one extracted legal reference.
type Citation struct {
	Raw     string       `json:"raw"`
	Kind    CitationKind `json:"kind"`
	Law     string       `json:"law"`
	Section string       `json:"section"`
}

// Key returns the dedupe identity of the citation.
func (c Citation) Key() string {
	return fmt.Sprintf("%s|%s|%s", c.Kind, strings.ToLower(c.Law), strings.ToLower(c.Section))
}

// Citation patterns, matched in order:
//
//	"Contracts Act 1950, section 75" / "Contracts Act 1950 section 75"
//	"section 75 of the Contracts Act 1950"
//	"Order 93 rule 4"
// The "Act YYYY section N" form is matched from its anchor; the statute
// title is rebuilt by walking back over the preceding capitalized words so a
// mid-sentence prefix ("You are liable under the ...") cannot bleed into it.
// The "section N of ..." form is anchored on the left, so the title capture
// there is safe; its word-class is case-sensitive with lowercase connectors
// allowed ("Sale of Goods Act 1957").
var (
	actAnchorRe = regexp.MustCompile(
		`\b(Act\s+\d{4})\s*,?\s*[Ss]ections?\s+(\d+[A-Za-z]?)`)
	sectionOfActRe = regexp.MustCompile(
		`\b[Ss]ections?\s+(\d+[A-Za-z]?)\s+of\s+((?:[Tt]he\s+)?(?:[A-Z][A-Za-z'()-]*\s+(?:of\s+|and\s+)?)+Act\s+\d{4})`)
	orderRuleRe = regexp.MustCompile(
		`\b[Oo]rder\s+(\d+)\s+[Rr]ule\s+(\d+[A-Za-z]?)`)

	// Lead-in phrases that bleed into the capture when the citation sits
	// mid-sentence ("... Pursuant To The Contracts Act 1950 section 75").
	leadInRe = regexp.MustCompile(
		`(?i)^(?:under|pursuant\s+to|according\s+to|based\s+on|per|in|of)\s+`)

	// Articles are dropped wherever they appear in the captured title.
	articleRe = regexp.MustCompile(`(?i)\bthe\s+`)

	wordRe      = regexp.MustCompile(`\S+`)
	titleWordRe = regexp.MustCompile(`^[A-Z][A-Za-z'()-]*$`)
)

// titleStopWords end the backward walk: articles, lead-ins, and citation
// signals never belong to a statute title.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {},
	"under": {}, "pursuant": {}, "to": {}, "according": {}, "based": {},
	"on": {}, "per": {}, "in": {}, "see": {}, "cf": {},
}

// titleConnectors may appear inside a title ("Sale of Goods Act 1957") but
// never start one.
var titleConnectors = map[string]struct{}{
	"of": {}, "and": {},
}

// precedingStatuteTitle walks back from the "Act YYYY" anchor and returns
// the start offset of the statute title inside prefix, or -1 when no title
// word precedes the anchor.
func precedingStatuteTitle(prefix string) int {
	words := wordRe.FindAllStringIndex(prefix, -1)
	start := -1
	for i := len(words) - 1; i >= 0; i-- {
		w := prefix[words[i][0]:words[i][1]]
		lower := strings.ToLower(w)
		if _, ok := titleConnectors[lower]; ok {
			continue
		}
		if _, ok := titleStopWords[lower]; ok {
			break
		}
		if !titleWordRe.MatchString(w) {
			break
		}
		start = words[i][0]
	}
	return start
}

// ExtractCitations pulls every legal reference from free text, deduplicated
// by (kind, law, section).
func ExtractCitations(text string) []Citation {
	var found []Citation
	seen := make(map[string]struct{})

	add := func(c Citation) {
		if c.Law == "" && c.Section == "" {
			return
		}
		if _, ok := seen[c.Key()]; ok {
			return
		}
		seen[c.Key()] = struct{}{}
		found = append(found, c)
	}

	for _, m := range actAnchorRe.FindAllStringSubmatchIndex(text, -1) {
		titleStart := precedingStatuteTitle(text[:m[2]])
		if titleStart < 0 {
			continue
		}
		add(Citation{
			Raw:     strings.TrimSpace(text[titleStart:m[1]]),
			Kind:    KindStatuteSection,
			Law:     CanonicalLawTitle(text[titleStart:m[3]]),
			Section: strings.ToUpper(text[m[4]:m[5]]),
		})
	}
	for _, m := range sectionOfActRe.FindAllStringSubmatch(text, -1) {
		add(Citation{
			Raw:     strings.TrimSpace(m[0]),
			Kind:    KindStatuteSection,
			Law:     CanonicalLawTitle(m[2]),
			Section: strings.ToUpper(m[1]),
		})
	}
	for _, m := range orderRuleRe.FindAllStringSubmatch(text, -1) {
		add(Citation{
			Raw:     strings.TrimSpace(m[0]),
			Kind:    KindCourtRule,
			Law:     fmt.Sprintf("Order %s", m[1]),
			Section: strings.ToUpper(m[2]),
		})
	}

	return found
}

// CanonicalLawTitle normalizes a captured statute title: lead-in phrases and
// articles are stripped, whitespace collapsed, title case preserved.
func CanonicalLawTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = leadInRe.ReplaceAllString(title, "")
	title = articleRe.ReplaceAllString(title, "")
	title = strings.Trim(title, " ,.;:")
	return strings.Join(strings.Fields(title), " ")
}
