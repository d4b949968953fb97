package report

import (
	"time"
)

// Record is one normalized device reading at one point in time. The bson
// field names match the dashboard's record collection so previously loaded
// data remains queryable.
type Record struct {
	Timestamp time.Time `bson:"dt_obj" json:"timestamp"`
	Site      string    `bson:"site" json:"site"`
	Device    string    `bson:"device" json:"device"`
	Clients   int       `bson:"clients" json:"clients"`
	Health    string    `bson:"health" json:"health"`
	State     string    `bson:"state" json:"state"`
	Model     string    `bson:"model,omitempty" json:"model,omitempty"`
	IP        string    `bson:"ip,omitempty" json:"ip,omitempty"`

	// IsTest marks synthetic records so they can be bulk-removed later.
	IsTest bool `bson:"is_test,omitempty" json:"is_test,omitempty"`
}

// UnknownSite is used when no site can be recovered from a filename.
const UnknownSite = "Unknown"
