package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WhatsAppAgent is one entry of a tenant's rotation queue. Positions are
// unique and dense per tenant (1..N, N <= 5).
type WhatsAppAgent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Tenant      string             `bson:"tenant" json:"-"`
	PhoneNumber string             `bson:"phone_number" json:"phone_number"`
	DisplayName string             `bson:"display_name" json:"display_name"`
	Position    int                `bson:"position" json:"position"`
	IsActive    bool               `bson:"is_active" json:"is_active"`
}

// QueueState is the single rotation cursor per tenant, advanced once per
// qualifying submission.
type QueueState struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Tenant          string             `bson:"tenant" json:"-"`
	CurrentPosition int                `bson:"current_position" json:"current_position"`
}
