package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLoggerAssignsSequence(t *testing.T) {
	l := NewMemoryLogger()
	ctx := context.Background()
	require.NoError(t, l.Record(ctx,
		NewAttackDeclareEvent(3, "battle", "p1", "Gemini Elf", "La Jinn"),
		NewDamageCalcEvent(3, "battle", "p1", "1900 vs 1800", nil),
	))
	require.NoError(t, l.Record(ctx, NewLifePointsEvent(3, "battle", "p2", 8000, 7900, "battle")))

	events := l.Events()
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Seq)
	}
	assert.Equal(t, EventLifePointsChanged, events[2].Type)
	assert.Len(t, OfType(events, EventAttackDeclared), 1)
}

func TestTextLoggerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewTextLogger(&buf)
	require.NoError(t, l.Record(context.Background(), NewTurnEvent(2, "p2")))
	assert.True(t, strings.Contains(buf.String(), "=== Turn 2 (p2) ==="))
	assert.Len(t, l.Events(), 1)
}

func TestLifePointsEventMetadata(t *testing.T) {
	e := NewLifePointsEvent(1, "battle", "p2", 8000, 6200, "direct attack")
	assert.Equal(t, -1800, e.Metadata["delta"])
	assert.Contains(t, e.Details, "8000 → 6200")
}
