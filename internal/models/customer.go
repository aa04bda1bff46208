package models

import "time"

// CustomerSubscription is the raw subscription block on the customer doc.
type CustomerSubscription struct {
	Plan             string     `bson:"plan" json:"plan"`
	Quantity         int        `bson:"quantity" json:"quantity"`
	CanceledDatetime *time.Time `bson:"canceled_datetime" json:"canceled_datetime"`
}

// Customer is the tenant grouping users. Members holds user ids.
type Customer struct {
	ID           string               `bson:"-" json:"id,omitempty"`
	Owner        string               `bson:"owner" json:"owner"`
	Members      []string             `bson:"members" json:"members"`
	Subscription CustomerSubscription `bson:"subscription" json:"subscription"`
}
