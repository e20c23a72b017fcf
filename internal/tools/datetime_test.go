package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatetimeTool(t *testing.T) {
	tool, err := NewDatetimeTool()
	require.NoError(t, err)

	// 2026-07-01 18:30 UTC is 14:30 in Montreal (EDT)
	tool.now = func() time.Time {
		return time.Date(2026, 7, 1, 18, 30, 0, 0, time.UTC)
	}

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)

	dt, ok := result.(DatetimeResult)
	require.True(t, ok)

	assert.Equal(t, "2026-07-01", dt.Date)
	assert.Equal(t, "14:30:00", dt.Time)
	assert.Equal(t, "Wednesday", dt.DayOfWeek)
	assert.Equal(t, "America/Montreal", dt.Timezone)
	assert.Equal(t, "Wednesday, July 1, 2026 at 2:30 PM", dt.Readable)
	assert.Contains(t, dt.Datetime, "2026-07-01T14:30:00")
}

func TestDatetimeToolDeclaration(t *testing.T) {
	tool, err := NewDatetimeTool()
	require.NoError(t, err)

	decl := tool.Declaration()
	assert.Equal(t, "get_current_datetime", decl.Name)
	assert.Empty(t, decl.Parameters.Required)
}
