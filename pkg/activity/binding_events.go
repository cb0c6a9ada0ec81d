package activity

import (
	"strings"
	"time"
)

// Verbs emitted for binding lifecycle transitions.
const (
	VerbAttached      = "storage.attached"
	VerbRestored      = "storage.restored"
	VerbPersisted     = "storage.persisted"
	VerbPersistFailed = "storage.persist_failed"
	VerbDetached      = "storage.detached"

	ObjectTypeBinding = "storage.binding"
)

// BindingContext identifies the binding an event is about.
type BindingContext struct {
	Namespace    string
	Keys         []string
	Driver       string
	AttachmentID string
}

// BindingEventInput carries the fields shared by binding events.
type BindingEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Binding    BindingContext
	Metadata   map[string]any
	Patch      []byte
	Err        error
	OccurredAt time.Time
}

// BuildAttachedEvent reports a binding that finished its attach sequence.
func BuildAttachedEvent(input BindingEventInput) Event {
	return buildBindingEvent(VerbAttached, input)
}

// BuildRestoredEvent reports persisted values applied onto host state.
func BuildRestoredEvent(input BindingEventInput) Event {
	return buildBindingEvent(VerbRestored, input)
}

// BuildPersistedEvent reports a record written to the driver. Input.Patch, when
// present, is the JSON merge patch from the previous record.
func BuildPersistedEvent(input BindingEventInput) Event {
	return buildBindingEvent(VerbPersisted, input)
}

// BuildPersistFailedEvent reports a write that did not reach the driver.
func BuildPersistFailedEvent(input BindingEventInput) Event {
	return buildBindingEvent(VerbPersistFailed, input)
}

// BuildDetachedEvent reports a binding that stopped watching.
func BuildDetachedEvent(input BindingEventInput) Event {
	return buildBindingEvent(VerbDetached, input)
}

func buildBindingEvent(verb string, input BindingEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if len(input.Binding.Keys) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["keys"] = append([]string{}, input.Binding.Keys...)
	}
	if input.Binding.Driver != "" {
		metadata = ensureMetadata(metadata)
		metadata["driver"] = input.Binding.Driver
	}
	if input.Binding.AttachmentID != "" {
		metadata = ensureMetadata(metadata)
		metadata["attachment_id"] = input.Binding.AttachmentID
	}
	if len(input.Patch) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["patch"] = string(input.Patch)
	}
	if input.Err != nil {
		metadata = ensureMetadata(metadata)
		metadata["error"] = input.Err.Error()
	}

	objectID := strings.TrimSpace(input.Binding.Namespace)
	if objectID == "" {
		objectID = strings.TrimSpace(input.Binding.AttachmentID)
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: ObjectTypeBinding,
		ObjectID:   objectID,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
