package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TimezoneName is the civil timezone all times are reported in.
const TimezoneName = "America/Montreal"

// DatetimeTool reports the current date and time in Montreal's timezone.
type DatetimeTool struct {
	loc *time.Location
	now func() time.Time
}

// NewDatetimeTool creates the clock tool.
func NewDatetimeTool() (*DatetimeTool, error) {
	loc, err := time.LoadLocation(TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %s: %w", TimezoneName, err)
	}
	return &DatetimeTool{loc: loc, now: time.Now}, nil
}

func (t *DatetimeTool) Declaration() Declaration {
	return Declaration{
		Name: "get_current_datetime",
		Description: "Get the current date and time in Montreal's timezone (America/Montreal). " +
			"Use this to calculate future times when the user says 'tomorrow', 'next week', 'in 2 hours', etc.",
		Parameters: ObjectSchema(map[string]Property{}),
	}
}

// DatetimeResult is the normalized clock reading.
type DatetimeResult struct {
	Datetime  string `json:"datetime"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	DayOfWeek string `json:"day_of_week"`
	Timezone  string `json:"timezone"`
	Readable  string `json:"readable"`
}

func (t *DatetimeTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	now := t.now().In(t.loc)
	return DatetimeResult{
		Datetime:  now.Format(time.RFC3339),
		Date:      now.Format("2006-01-02"),
		Time:      now.Format("15:04:05"),
		DayOfWeek: now.Format("Monday"),
		Timezone:  TimezoneName,
		Readable:  now.Format("Monday, January 2, 2006 at 3:04 PM"),
	}, nil
}
