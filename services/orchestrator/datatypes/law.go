// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"strings"
)

// LawFragment is a retrieved statute fragment with its search certainty.
type LawFragment struct {
	Source    string  `json:"source"`
	Section   string  `json:"section"`
	Content   string  `json:"content"`
	Certainty float32 `json:"certainty"`
}

// FormatLawContext renders retrieved fragments into the prompt context block.
// Each fragment is labeled so personas can cite it back verbatim.
func FormatLawContext(fragments []LawFragment) string {
	if len(fragments) == 0 {
		return "No relevant law fragments were found in the index."
	}

	var b strings.Builder
	for i, f := range fragments {
		fmt.Fprintf(&b, "LAW FRAGMENT %d (%s, section %s):\n%s\n\n",
			i+1, f.Source, f.Section, strings.TrimSpace(f.Content))
	}
	return strings.TrimSpace(b.String())
}

// IngestStatuteRequest is the body for POST /v1/laws.
//
// # Fields
//
//   - Content: Required. Raw statute text, possibly with running headers.
//   - Source: Required. Statute title (e.g., 'Contracts Act 1950').
//   - DocType: Optional. 'statute' (default) or 'court_rule'.
type IngestStatuteRequest struct {
	Content string `json:"content" validate:"required"`
	Source  string `json:"source" validate:"required,max=200"`
	DocType string `json:"doc_type" validate:"omitempty,oneof=statute court_rule"`
}

// Validate validates the IngestStatuteRequest fields.
func (r *IngestStatuteRequest) Validate() error {
	return caseValidate.Struct(r)
}

// EnsureDefaults populates default values for optional fields.
func (r *IngestStatuteRequest) EnsureDefaults() {
	if r.DocType == "" {
		r.DocType = "statute"
	}
}
