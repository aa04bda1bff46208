package models

import (
	"time"
)

// Sharing is the visibility of a template within a customer.
type Sharing string

const (
	// SharingNone means the template is private to its owner.
	SharingNone Sharing = "none"
	// SharingCustom means the template is visible to the users in SharedWith.
	SharingCustom Sharing = "custom"
	// SharingEveryone means the template is visible to every customer member.
	SharingEveryone Sharing = "everyone"
)

// Attachment is a file attached to a template. The blob lives in external
// storage; only the public URL and display name are kept on the template.
type Attachment struct {
	URL  string `bson:"url" json:"url"`
	Name string `bson:"name" json:"name"`
}

// Template is a reusable text snippet ("quicktext").
// The document id is kept out of the stored body: ID is populated from the
// document key on reads and stripped on writes.
type Template struct {
	ID          string       `bson:"-" json:"id,omitempty"`
	Title       string       `bson:"title" json:"title"`
	Body        string       `bson:"body" json:"body"`
	Shortcut    string       `bson:"shortcut" json:"shortcut"`
	Subject     string       `bson:"subject" json:"subject"`
	To          string       `bson:"to" json:"to"`
	Cc          string       `bson:"cc" json:"cc"`
	Bcc         string       `bson:"bcc" json:"bcc"`
	Attachments []Attachment `bson:"attachments" json:"attachments"`

	// Tags holds tag ids in storage. Resolved views (the template cache,
	// the API) replace them with tag titles.
	Tags []string `bson:"tags" json:"tags"`

	Owner    string `bson:"owner" json:"owner"`
	Customer string `bson:"customer" json:"customer"`

	Sharing    Sharing  `bson:"sharing" json:"sharing"`
	SharedWith []string `bson:"shared_with" json:"shared_with"`

	CreatedDatetime  time.Time  `bson:"created_datetime" json:"created_datetime"`
	ModifiedDatetime time.Time  `bson:"modified_datetime" json:"modified_datetime"`
	DeletedDatetime  *time.Time `bson:"deleted_datetime" json:"deleted_datetime"`
	LastuseDatetime  *time.Time `bson:"lastuse_datetime" json:"lastuse_datetime"`

	UseCount int `bson:"use_count" json:"use_count"`
	Version  int `bson:"version" json:"version"`
}

// Deleted reports whether the template is tombstoned.
func (t *Template) Deleted() bool {
	return t.DeletedDatetime != nil
}

// Private reports whether the template is visible only to its owner.
func (t *Template) Private() bool {
	return t.Sharing == SharingNone
}

// AttachmentUpload is an incoming attachment blob before it reaches storage.
type AttachmentUpload struct {
	Name string
	Data []byte
}

// TemplateDraft carries incoming template fields from the UI.
// Nil pointers mean "leave unchanged" on updates and "use the default" on
// creates. Tags holds tag titles, not ids; they are resolved during
// normalization.
type TemplateDraft struct {
	Title       *string       `json:"title"`
	Body        *string       `json:"body"`
	Shortcut    *string       `json:"shortcut"`
	Subject     *string       `json:"subject"`
	To          *string       `json:"to"`
	Cc          *string       `json:"cc"`
	Bcc         *string       `json:"bcc"`
	Attachments *[]Attachment `json:"attachments"`
	Tags        *[]string     `json:"tags"`

	// Timestamps are only honored by the normalization path (legacy
	// migration and sync); regular creates stamp their own.
	CreatedDatetime  *time.Time `json:"created_datetime"`
	ModifiedDatetime *time.Time `json:"modified_datetime"`
	DeletedDatetime  *time.Time `json:"deleted_datetime"`
	LastuseDatetime  *time.Time `json:"lastuse_datetime"`
}
