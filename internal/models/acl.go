package models

// ACLEntry is one user with access to one or more templates. The list is
// always derived from template sharing fields, never persisted.
type ACLEntry struct {
	TargetUserID string `json:"target_user_id"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
}

// ShareNotification is the payload of a "templates were shared with you"
// notification. One notification covers every user touched by a single
// sharing update.
type ShareNotification struct {
	Users       []ACLEntry `json:"users"`
	TemplateIDs []string   `json:"template_ids"`
	Message     string     `json:"message,omitempty"`
	SenderID    string     `json:"sender_id"`
	SenderName  string     `json:"sender_name,omitempty"`
}

// SharingAction selects the updateSharing code path.
type SharingAction string

const (
	SharingActionCreate SharingAction = "create"
	SharingActionUpdate SharingAction = "update"
	SharingActionDelete SharingAction = "delete"
)

// SharingUpdate is the payload of an updateSharing call.
//
// For create/update, Templates maps template id to the list of member emails
// the template should be shared with. Emails never include the caller but may
// include the template owner.
//
// For delete, UserID is removed from the shared_with of every template in
// TemplateIDs.
type SharingUpdate struct {
	Action      SharingAction       `json:"action"`
	Templates   map[string][]string `json:"templates,omitempty"`
	TemplateIDs []string            `json:"template_ids,omitempty"`
	UserID      string              `json:"user_id,omitempty"`
	Message     string              `json:"message,omitempty"`
	Notify      bool                `json:"notify,omitempty"`
}
