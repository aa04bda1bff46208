package models

// Tag labels templates within a customer. Titles are not unique at the data
// layer; callers dedup by title before creating new ones.
type Tag struct {
	ID       string `bson:"-" json:"id,omitempty"`
	Customer string `bson:"customer" json:"customer"`
	Title    string `bson:"title" json:"title"`
	Version  int    `bson:"version" json:"version"`
}
