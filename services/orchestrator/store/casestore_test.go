// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

func newTestStore(t *testing.T) *CaseStore {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestCase() *datatypes.Case {
	req := &datatypes.StartCaseRequest{
		Title:         "Deposit not returned",
		ClaimAmountRM: 4500,
		FloorPriceRM:  3000,
	}
	req.EnsureDefaults()
	return req.NewCase()
}

func TestCreateAndGetCase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newTestCase()
	require.NoError(t, s.CreateCase(ctx, c))

	got, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, datatypes.StatusCreated, got.Status)
	assert.Equal(t, datatypes.GameActive, got.GameState)
	assert.Equal(t, 4500, got.ClaimAmountRM)
}

func TestUpdateCasePersistsDocumentHTML(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newTestCase()
	require.NoError(t, s.CreateCase(ctx, c))

	_, err := s.UpdateCase(ctx, c.ID, func(c *datatypes.Case) error {
		c.DocumentHTML = "<html><body>Settlement Agreement</body></html>"
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>Settlement Agreement</body></html>", got.DocumentHTML,
		"outcome document must survive the store round-trip")
}

func TestCreateCaseDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newTestCase()
	require.NoError(t, s.CreateCase(ctx, c))
	assert.Error(t, s.CreateCase(ctx, c))
}

func TestGetCaseNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCase(context.Background(), "no-such-case")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestMarkRunningCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newTestCase()
	require.NoError(t, s.CreateCase(ctx, c))

	got, err := s.MarkRunning(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusRunning, got.Status)

	// A second run must be rejected while the first owns the case.
	_, err = s.MarkRunning(ctx, c.ID)
	assert.ErrorIs(t, err, ErrCaseAlreadyRunning)

	// Finished cases can be re-run.
	_, err = s.UpdateCase(ctx, c.ID, func(c *datatypes.Case) error {
		c.Status = datatypes.StatusDone
		return nil
	})
	require.NoError(t, err)
	_, err = s.MarkRunning(ctx, c.ID)
	assert.NoError(t, err)
}

func TestAppendAndListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newTestCase()
	require.NoError(t, s.CreateCase(ctx, c))

	offer := 3500
	msgs := []datatypes.Message{
		{CaseID: c.ID, Role: datatypes.RolePlaintiff, Content: "Opening argument", Round: 1},
		{CaseID: c.ID, Role: datatypes.RoleDefendant, Content: "Response", Round: 1, CounterOfferRM: &offer},
		{CaseID: c.ID, Role: datatypes.RolePlaintiff, Content: "Rebuttal", Round: 2},
	}
	for i := range msgs {
		require.NoError(t, s.AppendMessage(ctx, &msgs[i]))
	}

	got, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Opening argument", got[0].Content)
	assert.Equal(t, "Response", got[1].Content)
	require.NotNil(t, got[1].CounterOfferRM)
	assert.Equal(t, 3500, *got[1].CounterOfferRM)
	assert.Equal(t, "Rebuttal", got[2].Content)
}

func TestAppendMessageUnknownCase(t *testing.T) {
	s := newTestStore(t)

	m := &datatypes.Message{CaseID: "ghost", Role: datatypes.RoleSystem, Content: "x"}
	err := s.AppendMessage(context.Background(), m)
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestEvidenceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newTestCase()
	require.NoError(t, s.CreateCase(ctx, c))

	e := &datatypes.Evidence{
		ID:            "ev-1",
		CaseID:        c.ID,
		FileType:      "receipt",
		ExtractedText: "Deposit RM 4,500 received on 3 Jan",
	}
	require.NoError(t, s.AddEvidence(ctx, e))

	got, err := s.ListEvidence(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "receipt", got[0].FileType)
}

func TestDownloadCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	url := "https://example.com/receipt.pdf"

	_, err := s.GetCachedDownload(ctx, url)
	assert.ErrorIs(t, err, ErrCacheMiss)

	d := &CachedDownload{MimeType: "application/pdf", Text: "extracted", FetchedAt: time.Now().UnixMilli()}
	require.NoError(t, s.PutCachedDownload(ctx, url, d, time.Hour))

	got, err := s.GetCachedDownload(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", got.MimeType)
	assert.Equal(t, "extracted", got.Text)
}

func TestSubscribeReceivesAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := newTestCase()
	require.NoError(t, s.CreateCase(ctx, c))

	ch := s.Subscribe(c.ID)
	defer s.Unsubscribe(c.ID, ch)

	m := &datatypes.Message{CaseID: c.ID, Role: datatypes.RoleMediator, Content: "Proposal", Round: 4}
	require.NoError(t, s.AppendMessage(ctx, m))

	select {
	case got := <-ch:
		assert.Equal(t, datatypes.RoleMediator, got.Role)
		assert.Equal(t, "Proposal", got.Content)
	case <-time.After(time.Second):
		t.Fatal("no message received on subscription")
	}
}
