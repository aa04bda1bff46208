package models

import "time"

// User is a customer member as stored in the users collection.
type User struct {
	ID       string `bson:"-" json:"id,omitempty"`
	Email    string `bson:"email" json:"email"`
	FullName string `bson:"full_name" json:"name"`
	Active   bool   `bson:"active" json:"active"`
	Customer string `bson:"customer,omitempty" json:"customer,omitempty"`

	// ShareAll mirrors the customer-wide default-share preference.
	ShareAll bool `bson:"share_all,omitempty" json:"share_all,omitempty"`

	// Settings holds the user's synced extension settings; written as
	// dotted settings.* keys by SettingsService.
	Settings map[string]interface{} `bson:"settings,omitempty" json:"settings,omitempty"`
}

// Subscription is the customer's billing state, read-only here.
type Subscription struct {
	Plan     string `bson:"plan" json:"plan"`
	Quantity int    `bson:"quantity" json:"quantity"`
	Active   bool   `bson:"-" json:"active"`
}

// SignedInUser is the single-slot projection of the authenticated user kept
// by the session manager. It is derived from the identity provider plus the
// users and customers collections, and persisted locally so a restarted
// process resumes the same session.
type SignedInUser struct {
	ID              string       `json:"id"`
	Email           string       `json:"email"`
	Name            string       `json:"name"`
	Customer        string       `json:"customer"`
	IsCustomer      bool         `json:"is_customer"`
	ShareAll        bool         `json:"share_all"`
	Subscription    Subscription `json:"current_subscription"`
	CreatedDatetime time.Time    `json:"created_datetime"`
}
