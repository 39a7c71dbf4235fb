package service

import (
	"encoding/json"
	"fmt"

	"crm-sync-pipeline/internal/core/domain"
)

// The CRM delivers two body shapes. Both decode into a named variant here
// and normalize into one canonical domain.WebhookEvent; nothing downstream
// branches on raw payload keys.

// crmPayload is the CRM v2/v3 notification shape. On multi-record payloads
// the first element of data is the canonical record.
type crmPayload struct {
	Operation      string           `json:"operation"`
	Module         string           `json:"module"`
	Data           []map[string]any `json:"data"`
	ModifiedFields []string         `json:"modified_fields"`
	User           *struct {
		ID string `json:"id"`
	} `json:"user"`
}

// genericPayload is the flat fallback shape.
type genericPayload struct {
	EventType      string         `json:"event_type"`
	Module         string         `json:"module"`
	RecordID       string         `json:"record_id"`
	RecordData     map[string]any `json:"record_data"`
	ModifiedFields []string       `json:"modified_fields"`
	UserID         string         `json:"user_id"`
}

// decodePayload parses a raw webhook body into the canonical event.
// eventID comes from the delivery header and may be empty, in which case
// construction generates one.
func decodePayload(body []byte, eventID string) (*domain.WebhookEvent, error) {
	var probe struct {
		Operation string `json:"operation"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decoding webhook body: %w", err)
	}

	if probe.Operation != "" {
		var p crmPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decoding crm payload: %w", err)
		}
		return normalizeCRM(p, eventID)
	}

	var p genericPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decoding generic payload: %w", err)
	}
	return normalizeGeneric(p, eventID)
}

func normalizeCRM(p crmPayload, eventID string) (*domain.WebhookEvent, error) {
	var record map[string]any
	var recordID string
	if len(p.Data) > 0 {
		record = p.Data[0]
		recordID, _ = record["id"].(string)
	}
	var userID string
	if p.User != nil {
		userID = p.User.ID
	}
	return domain.NewWebhookEvent(
		eventID,
		operationToEventType(p.Operation),
		domain.Module(p.Module),
		recordID,
		record,
		p.ModifiedFields,
		userID,
	)
}

func normalizeGeneric(p genericPayload, eventID string) (*domain.WebhookEvent, error) {
	return domain.NewWebhookEvent(
		eventID,
		domain.EventType(p.EventType),
		domain.Module(p.Module),
		p.RecordID,
		p.RecordData,
		p.ModifiedFields,
		p.UserID,
	)
}

// operationToEventType maps the CRM's operation vocabulary onto the event
// type enum. "insert" is the CRM's name for create.
func operationToEventType(op string) domain.EventType {
	if op == "insert" {
		return domain.EventCreate
	}
	return domain.EventType(op)
}
