package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/djlord-it/bizflow/internal/config"
	"github.com/djlord-it/bizflow/internal/domain"
)

// EmitCmd dispatches one event in-process: the event is recorded, matching
// triggers run and automation listeners cascade, all before it returns.
type EmitCmd struct {
	Type    string `arg:"" help:"Event type, e.g. invoice.paid"`
	Payload string `arg:"" optional:"" help:"JSON object payload" default:"{}"`
}

func (c *EmitCmd) Run() error {
	eventType, payload, err := c.parse()
	if err != nil {
		return &exitError{code: exitRuntimeError, err: err}
	}

	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		return configError(err)
	}

	ctx := context.Background()
	eng, err := newEngine(ctx, cfg, nil)
	if err != nil {
		return runtimeError("failed to start: %w", err)
	}
	defer eng.Close()

	eng.disp.Emit(ctx, eventType, payload)
	eng.disp.Wait()
	fmt.Printf("emitted %s\n", eventType)
	return nil
}

func (c *EmitCmd) parse() (domain.EventType, map[string]any, error) {
	eventType, err := domain.ParseEventType(strings.TrimSpace(c.Type))
	if err != nil {
		return "", nil, err
	}

	raw := strings.TrimSpace(c.Payload)
	if raw == "" {
		raw = "{}"
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", nil, fmt.Errorf("invalid payload: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return eventType, payload, nil
}
