package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CRMStatus reports the outcome of the CRM delivery attempt in the submit
// result. Never overrides overall success in parallel mode.
type CRMStatus string

const (
	CRMSent          CRMStatus = "sent"
	CRMError         CRMStatus = "error"
	CRMNotConfigured CRMStatus = "not_configured"
)

// CRMIntegration configures the webhook of the tenant's CRM. At most one per
// tenant. In exclusive mode the CRM webhook replaces the spreadsheet path
// for the submission; otherwise it is delivered in parallel, best-effort.
type CRMIntegration struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Tenant               string             `bson:"tenant" json:"-"`
	WebhookURL           string             `bson:"webhook_url" json:"webhook_url"`
	BearerToken          string             `bson:"bearer_token,omitempty" json:"bearer_token,omitempty"`
	ManagerID            string             `bson:"manager_id,omitempty" json:"manager_id,omitempty"`
	Slug                 string             `bson:"slug,omitempty" json:"slug,omitempty"`
	IsActive             bool               `bson:"is_active" json:"is_active"`
	IncludeDynamicFields bool               `bson:"include_dynamic_fields" json:"include_dynamic_fields"`
	ExclusiveMode        bool               `bson:"exclusive_mode" json:"exclusive_mode"`
}
