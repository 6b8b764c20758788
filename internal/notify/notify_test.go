package notify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/estofados/storefront/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenter_KeepsMostRecent(t *testing.T) {
	var buf bytes.Buffer
	c := NewCenter(slog.New(slog.NewJSONHandler(&buf, nil)), nil, nil, 2)

	c.Notify(KindInfo, "one")
	c.Notify(KindSuccess, "two")
	c.Notify(KindError, "three")

	recent := c.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Message)
	assert.Equal(t, "three", recent[1].Message)
	assert.NotEmpty(t, recent[1].ID)
	assert.Contains(t, buf.String(), `"message":"three"`)
}

func TestCenter_DrainEmpties(t *testing.T) {
	var buf bytes.Buffer
	c := NewCenter(slog.New(slog.NewJSONHandler(&buf, nil)), nil, nil, 0)

	assert.Empty(t, c.Drain())
	c.Notify(KindWarning, "sign in first")

	drained := c.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, KindWarning, drained[0].Kind)
	assert.Empty(t, c.Recent())
}

func TestCenter_PublishesChange(t *testing.T) {
	var buf bytes.Buffer
	hub := state.NewHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	c := NewCenter(slog.New(slog.NewJSONHandler(&buf, nil)), nil, hub, 0)
	c.Notify(KindSuccess, "added")

	change := <-ch
	assert.Equal(t, state.TopicNotice, change.Topic)
}
