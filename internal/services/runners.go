package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"gorm.io/datatypes"

	"github.com/orbitcrm/blueprint-engine/internal/notify"
	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

// NewEventRunner publishes the action config as an engine event; the default
// runner for notification-style action types when no richer integration is
// wired in.
func NewEventRunner(log *logger.Logger, bus notify.Bus, eventType string) ActionRunner {
	return ActionRunnerFunc(func(ctx context.Context, config datatypes.JSON, actx ActionContext) (datatypes.JSON, error) {
		payload := map[string]interface{}{}
		if len(config) > 0 {
			if err := json.Unmarshal(config, &payload); err != nil {
				return nil, fmt.Errorf("action config: %w", err)
			}
		}
		if bus != nil {
			if err := bus.Publish(ctx, notify.Event{
				Type:        eventType,
				BlueprintID: actx.BlueprintID,
				RecordID:    actx.RecordID,
				Payload:     payload,
			}); err != nil {
				return nil, err
			}
		}
		log.Info("action event published", "type", eventType, "record_id", actx.RecordID)
		return config, nil
	})
}

// NewWebhookRunner POSTs the rendered config to the url it names.
func NewWebhookRunner(log *logger.Logger) ActionRunner {
	client := &http.Client{}
	return ActionRunnerFunc(func(ctx context.Context, config datatypes.JSON, actx ActionContext) (datatypes.JSON, error) {
		var cfg struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("webhook config: %w", err)
		}
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook config missing url")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(config))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook returned %d", resp.StatusCode)
		}

		raw, err := json.Marshal(map[string]interface{}{"status_code": resp.StatusCode})
		if err != nil {
			return nil, err
		}
		log.Info("webhook delivered", "url", cfg.URL, "status", resp.StatusCode)
		return datatypes.JSON(raw), nil
	})
}
