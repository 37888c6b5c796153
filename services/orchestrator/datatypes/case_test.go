// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartCaseRequestDefaultsAndValidate(t *testing.T) {
	req := &StartCaseRequest{
		Title:         "Landlord kept the deposit",
		ClaimAmountRM: 5000,
		FloorPriceRM:  4000,
	}
	req.EnsureDefaults()
	assert.Equal(t, "tenancy_deposit", req.CaseType)
	assert.NoError(t, req.Validate())
}

func TestStartCaseRequestRejectsFloorAboveClaim(t *testing.T) {
	req := &StartCaseRequest{
		Title:         "Deposit dispute",
		ClaimAmountRM: 3000,
		FloorPriceRM:  3500,
	}
	req.EnsureDefaults()
	err := req.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "floor_price_rm")
}

func TestStartCaseRequestRejectsMissingTitle(t *testing.T) {
	req := &StartCaseRequest{ClaimAmountRM: 1000}
	req.EnsureDefaults()
	assert.Error(t, req.Validate())
}

func TestNewCaseInitialState(t *testing.T) {
	req := &StartCaseRequest{
		Title:         "Deposit dispute",
		ClaimAmountRM: 5000,
	}
	req.EnsureDefaults()

	c := req.NewCase()
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, StatusCreated, c.Status)
	assert.Equal(t, GameActive, c.GameState)
	assert.Equal(t, 1, c.Round)
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
}

func TestNextTurnRequestMessageSizeCap(t *testing.T) {
	req := &NextTurnRequest{
		Message: strings.Repeat("a", MaxUserMessageBytes+1),
		Role:    RolePlaintiff,
	}
	assert.Error(t, req.Validate())

	req.Message = "The deposit was never returned."
	assert.NoError(t, req.Validate())
}

func TestNextTurnRequestRejectsMediatorRole(t *testing.T) {
	req := &NextTurnRequest{Message: "hello", Role: RoleMediator}
	assert.Error(t, req.Validate())
}

func TestAddEvidenceRequestNeedsTextOrURL(t *testing.T) {
	req := &AddEvidenceRequest{FileType: "txt"}
	assert.Error(t, req.Validate())

	req.Text = "Tenancy agreement clause 4: deposit of RM 2,000."
	assert.NoError(t, req.Validate())

	req.Text = ""
	req.StorageURL = "https://example.com/agreement.pdf"
	assert.NoError(t, req.Validate())
}

func TestRoleOpponent(t *testing.T) {
	assert.Equal(t, RoleDefendant, RolePlaintiff.Opponent())
	assert.Equal(t, RolePlaintiff, RoleDefendant.Opponent())
	assert.Equal(t, RoleMediator, RoleMediator.Opponent())
}
