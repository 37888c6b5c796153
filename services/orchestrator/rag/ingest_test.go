// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"strings"
	"testing"
)

const sampleStatute = `Laws of Malaysia
ACT 136

74. Compensation for loss or damage caused by breach of contract.
When a contract has been broken, the party who suffers by the breach is
entitled to receive compensation for any loss or damage caused to him.

75. Compensation for breach of contract where penalty stipulated for.
When a contract has been broken, if a sum is named in the contract as the
amount to be paid in case of such breach, the party complaining of the
breach is entitled to receive reasonable compensation not exceeding the
amount so named.

12

76. Party rightfully rescinding contract entitled to compensation.
A person who rightfully rescinds a contract is entitled to compensation for
any damage which he has sustained through the non-fulfilment of the contract.
`

func TestCleanStatuteText(t *testing.T) {
	cleaned := CleanStatuteText(sampleStatute)

	if strings.Contains(cleaned, "Laws of Malaysia") {
		t.Error("running header should be stripped")
	}
	if strings.Contains(cleaned, "\n12\n") {
		t.Error("bare page numbers should be stripped")
	}
	if !strings.Contains(cleaned, "Compensation for breach of contract") {
		t.Error("section content must survive cleaning")
	}
}

func TestSplitSectionsByHeading(t *testing.T) {
	chunks, err := SplitSections(CleanStatuteText(sampleStatute))
	if err != nil {
		t.Fatalf("SplitSections() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 section chunks, got %d", len(chunks))
	}

	wantSections := []string{"74", "75", "76"}
	for i, want := range wantSections {
		if chunks[i].Section != want {
			t.Errorf("chunk %d section = %q, want %q", i, chunks[i].Section, want)
		}
	}
	if !strings.Contains(chunks[1].Content, "penalty stipulated") {
		t.Error("section 75 chunk should carry its own text")
	}
	if strings.Contains(chunks[0].Content, "penalty stipulated") {
		t.Error("section 74 chunk should not bleed into section 75")
	}
}

func TestSplitSectionsLetteredHeading(t *testing.T) {
	text := "14. Ordinary limitation.\nSix years from accrual.\n\n" +
		"14A. Extension for latent damage.\nThree years from knowledge."
	chunks, err := SplitSections(text)
	if err != nil {
		t.Fatalf("SplitSections() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].Section != "14A" {
		t.Errorf("second section = %q, want 14A", chunks[1].Section)
	}
}

func TestSplitSectionsFallback(t *testing.T) {
	// Unstructured prose: no section headings to key on.
	text := strings.Repeat("The tenant and landlord dispute the deposit amount. ", 50)
	chunks, err := SplitSections(text)
	if err != nil {
		t.Fatalf("SplitSections() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("fallback splitter should produce multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Section != "" {
			t.Errorf("chunk %d: fallback chunks must not claim a section, got %q", i, c.Section)
		}
	}
}

func TestSourceFromFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/corpus/contracts_act_1950.txt", "Contracts Act 1950"},
		{"limitation-act-1953.md", "Limitation Act 1953"},
		{"Rules_of_Court_2012.txt", "Rules Of Court 2012"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sourceFromFilename(tt.in); got != tt.want {
				t.Errorf("sourceFromFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
