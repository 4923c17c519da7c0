package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lead is the durable record of one submission: the full answer trace as an
// opaque blob plus denormalized fixed fields for listing/reporting.
// Created exactly once per submission; never mutated afterwards.
type Lead struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	Tenant    string                 `bson:"tenant" json:"-"`
	Name      string                 `bson:"name,omitempty" json:"name,omitempty"`
	Phone     int64                  `bson:"phone,omitempty" json:"phone,omitempty"` // digits only
	HasEmail  bool                   `bson:"has_email" json:"has_email"`
	Trace     map[string]interface{} `bson:"trace" json:"trace"`
	AgentName string                 `bson:"agent_name,omitempty" json:"agent_name,omitempty"`
	AgentID   primitive.ObjectID     `bson:"agent_id,omitempty" json:"agent_id,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
}
