// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine drives the negotiation: persona turns, offer evaluation,
// game-state transitions, the mediator, and outcome documents.
package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

// Personas are instructed to reply with JSON:
//
//	{"message": "...", "counter_offer_rm": 3500}
//
// Models wrap it in markdown fences, quote the amount, add commas, or skip
// the structure entirely. Parsing is forgiving on shape and strict on
// meaning: only a non-negative integer amount counts as an offer.

var (
	fenceRe  = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	digitsRe = regexp.MustCompile(`^-?\d+$`)
)

// StripCodeFences removes a wrapping markdown code fence, if present.
func StripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// ParseAgentReply extracts the message text and the monetary offer from a
// raw persona reply. Unparseable replies become plain messages carrying no
// offer rather than failed turns.
func ParseAgentReply(raw string) (string, *int) {
	cleaned := StripCodeFences(raw)
	if !gjson.Valid(cleaned) {
		return cleaned, nil
	}

	parsed := gjson.Parse(cleaned)
	if parsed.Type != gjson.JSON {
		return cleaned, nil
	}

	message := parsed.Get("message").String()
	if message == "" {
		message = cleaned
	}
	return message, toIntOffer(parsed.Get("counter_offer_rm"))
}

// toIntOffer converts a scraped JSON value to a whole-RM offer.
//
// Accepted: integers, floats (truncated), digit strings with commas or an
// "RM" prefix. Rejected: booleans, negatives, and anything else.
func toIntOffer(v gjson.Result) *int {
	switch v.Type {
	case gjson.Number:
		amount := int(v.Float())
		if amount < 0 {
			return nil
		}
		return &amount
	case gjson.String:
		s := strings.TrimSpace(v.String())
		s = strings.TrimPrefix(strings.ToUpper(s), "RM")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)
		if !digitsRe.MatchString(s) {
			return nil
		}
		amount, err := strconv.Atoi(s)
		if err != nil || amount < 0 {
			return nil
		}
		return &amount
	default:
		// True/False/Null/arrays/objects are not offers.
		return nil
	}
}

// EvaluateOffer applies the symbolic settlement rule: an offer settles the
// case when it meets or exceeds the plaintiff's floor price. A zero floor
// means any offer settles.
func EvaluateOffer(offer *int, floorPriceRM int) datatypes.OfferEvaluation {
	if offer == nil {
		return datatypes.OfferEvaluation{}
	}
	return datatypes.OfferEvaluation{
		HasOffer:    true,
		OfferAmount: *offer,
		MeetsFloor:  *offer >= floorPriceRM,
	}
}
