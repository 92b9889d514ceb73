package toolkit

import (
	"context"
	"encoding/json"
	"time"
)

// timeTool reports the current time in the timezone named by its input,
// falling back to UTC when none is given or it cannot be loaded.
type timeTool struct {
	baseTool
}

type timeInput struct {
	Timezone string `json:"timezone,omitempty"`
}

func (t *timeTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in timeInput
	if err := t.validate(args, &in); err != nil {
		return "", err
	}
	loc := time.UTC
	if in.Timezone != "" {
		l, err := time.LoadLocation(in.Timezone)
		if err == nil {
			loc = l
		}
	}
	return time.Now().In(loc).Format(time.RFC3339), nil
}
