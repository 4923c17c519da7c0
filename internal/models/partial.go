package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PartialProgress is an abandonment snapshot of an in-flight form session,
// keyed by (session_id, tenant) and overwritten as the session advances.
type PartialProgress struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	SessionID   string                 `bson:"session_id" json:"session_id"`
	Tenant      string                 `bson:"tenant" json:"-"`
	StepReached int                    `bson:"step_reached" json:"step_reached"`
	PartialData map[string]interface{} `bson:"partial_data,omitempty" json:"partial_data,omitempty"`
	Abandoned   bool                   `bson:"abandoned" json:"abandoned"`
	UpdatedAt   time.Time              `bson:"updated_at" json:"updated_at"`
}
