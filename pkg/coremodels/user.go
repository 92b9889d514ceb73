// Package coremodels defines the CORE's working data set: the plain,
// JSON-tagged structs exchanged with the state-store REST collaborator.
// Storage layout belongs to that collaborator; these types are the CORE's
// in-memory view of it.
package coremodels

import "time"

// User is a messaging-platform identity managed by the external CRUD layer.
// The CORE only reads users; it never creates or mutates them.
type User struct {
	ID                   int64     `json:"id"`
	ExternalID           string    `json:"external_id"`
	DisplayName          string    `json:"display_name"`
	Timezone             string    `json:"timezone"`
	ActiveSecretaryID    string    `json:"active_secretary_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// SecretaryAssignment records one entry in a user's secretary-assignment
// history. The CORE reads the current assignment via the state store's
// /api/users/{id}/secretary endpoint; history is owned externally.
type SecretaryAssignment struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	SecretaryID  string    `json:"secretary_id"`
	AssignedAt   time.Time `json:"assigned_at"`
	UnassignedAt *time.Time `json:"unassigned_at,omitempty"`
}
