package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType is the CRM change operation carried by a webhook notification.
type EventType string

const (
	EventCreate  EventType = "create"
	EventUpdate  EventType = "update"
	EventDelete  EventType = "delete"
	EventRestore EventType = "restore"
)

// Valid reports whether t is one of the enumerated event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCreate, EventUpdate, EventDelete, EventRestore:
		return true
	}
	return false
}

// Module is a CRM module whose records the pipeline tracks.
type Module string

const (
	ModuleAccounts   Module = "Accounts"
	ModuleContacts   Module = "Contacts"
	ModuleDeals      Module = "Deals"
	ModuleTasks      Module = "Tasks"
	ModuleNotes      Module = "Notes"
	ModuleActivities Module = "Activities"
)

// Modules lists every tracked CRM module.
var Modules = []Module{
	ModuleAccounts,
	ModuleContacts,
	ModuleDeals,
	ModuleTasks,
	ModuleNotes,
	ModuleActivities,
}

// Valid reports whether m is one of the enumerated modules.
func (m Module) Valid() bool {
	for _, known := range Modules {
		if m == known {
			return true
		}
	}
	return false
}

// WebhookEvent is the canonical unit of work flowing through the pipeline.
// EventID is the deduplication key and is immutable once assigned.
type WebhookEvent struct {
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	Module         Module         `json:"module"`
	RecordID       string         `json:"record_id"`
	RecordData     map[string]any `json:"record_data,omitempty"`
	ModifiedFields []string       `json:"modified_fields,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	UserID         string         `json:"user_id,omitempty"`
}

// NewWebhookEvent builds a validated event. An empty eventID gets a generated
// UUID; an empty recordID is tolerated (malformed payloads still flow through
// the pipeline rather than being rejected at construction).
func NewWebhookEvent(
	eventID string,
	eventType EventType,
	module Module,
	recordID string,
	recordData map[string]any,
	modifiedFields []string,
	userID string,
) (*WebhookEvent, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("invalid event type %q", eventType)
	}
	if !module.Valid() {
		return nil, fmt.Errorf("invalid module %q", module)
	}
	if eventID == "" {
		eventID = uuid.New().String()
	}
	return &WebhookEvent{
		EventID:        eventID,
		EventType:      eventType,
		Module:         module,
		RecordID:       recordID,
		RecordData:     recordData,
		ModifiedFields: modifiedFields,
		Timestamp:      time.Now().UTC(),
		UserID:         userID,
	}, nil
}

// criticalAccountFields are the Accounts fields whose change always forces a
// downstream sync, bypassing debounce heuristics.
var criticalAccountFields = map[string]struct{}{
	"Status":         {},
	"Health_Score":   {},
	"Owner":          {},
	"Annual_Revenue": {},
	"Account_Type":   {},
	"Industry":       {},
}

// TouchesCriticalField reports whether any modified field is in the critical
// set for Accounts updates.
func (e *WebhookEvent) TouchesCriticalField() bool {
	for _, f := range e.ModifiedFields {
		if _, ok := criticalAccountFields[f]; ok {
			return true
		}
	}
	return false
}

// OwningAccountID resolves the account a related-module event belongs to.
// For Accounts events it is the record itself; for other modules it is read
// from the nested reference fields Account_Name, What_Id and Parent_Id (the
// latter two only when they point at an Accounts record). Returns false when
// no owning account can be resolved.
func (e *WebhookEvent) OwningAccountID() (string, bool) {
	if e.Module == ModuleAccounts {
		return e.RecordID, e.RecordID != ""
	}
	if id, ok := refID(e.RecordData, "Account_Name"); ok {
		return id, true
	}
	for _, key := range []string{"What_Id", "Parent_Id"} {
		if id, ok := accountRefID(e.RecordData, key); ok {
			return id, true
		}
	}
	return "", false
}

// refID extracts data[key].id when key holds a reference object.
func refID(data map[string]any, key string) (string, bool) {
	ref, ok := data[key].(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := ref["id"].(string)
	return id, ok && id != ""
}

// accountRefID is refID restricted to references whose module is Accounts.
// The CRM marks the module either as "module" or "$se_module".
func accountRefID(data map[string]any, key string) (string, bool) {
	ref, ok := data[key].(map[string]any)
	if !ok {
		return "", false
	}
	mod, _ := ref["module"].(string)
	if mod == "" {
		mod, _ = ref["$se_module"].(string)
	}
	if Module(mod) != ModuleAccounts {
		return "", false
	}
	id, ok := ref["id"].(string)
	return id, ok && id != ""
}
