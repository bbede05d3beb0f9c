package models

// Group lifecycle event types emitted by the group-management service.
const (
	LifecycleCreated     = "created"
	LifecycleUserJoined  = "user_joined"
	LifecycleUserLeft    = "user_left"
	LifecycleRoleChanged = "role_changed"
	LifecycleDeleted     = "deleted"
)

// LifecycleEvent is the tagged variant consumed by the lifecycle bridge.
// MemberIDs is only populated for deleted events: the emitter captures
// the member list before the cascade removes the participant rows, and
// the bridge must never re-fetch membership for those.
type LifecycleEvent struct {
	Type           string   `json:"type"`
	GroupID        string   `json:"group_id"`
	ConversationID string   `json:"conversation_id"`
	ActorID        string   `json:"actor_id"`
	SubjectID      string   `json:"subject_id,omitempty"`
	NewRole        string   `json:"new_role,omitempty"`
	MemberIDs      []string `json:"member_ids,omitempty"`
}
