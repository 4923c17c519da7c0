package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SuccessVariant is a named terminal success-screen configuration that
// branching rules can select instead of the default copy.
type SuccessVariant struct {
	Key      string `bson:"key" json:"key"`
	Title    string `bson:"title" json:"title"`
	Message  string `bson:"message,omitempty" json:"message,omitempty"`
	ShowLink bool   `bson:"show_link" json:"show_link"` // whether the WhatsApp handoff link is shown
}

// TenantSettings is the per-tenant singleton configuration consumed by the
// public form and the dispatcher. Created lazily with defaults on first
// access; mutated by admins; never deleted.
type TenantSettings struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Tenant            string             `bson:"tenant" json:"-"`
	WhatsAppEnabled   bool               `bson:"whatsapp_enabled" json:"whatsapp_enabled"`
	WhatsAppOnSubmit  bool               `bson:"whatsapp_on_submit" json:"whatsapp_on_submit"`
	WhatsAppNumber    string             `bson:"whatsapp_number,omitempty" json:"whatsapp_number,omitempty"` // fixed fallback number
	WhatsAppTemplate  string             `bson:"whatsapp_template,omitempty" json:"whatsapp_template,omitempty"`
	SuccessTitle      string             `bson:"success_title" json:"success_title"`
	SuccessMessage    string             `bson:"success_message,omitempty" json:"success_message,omitempty"`
	SuccessVariants   []SuccessVariant   `bson:"success_variants,omitempty" json:"success_variants,omitempty"`
	SheetWebhookURL   string             `bson:"sheet_webhook_url,omitempty" json:"sheet_webhook_url,omitempty"`
	NotificationEmail string             `bson:"notification_email,omitempty" json:"notification_email,omitempty"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}

// VariantByKey returns the named variant, or nil when the key is unknown.
func (s *TenantSettings) VariantByKey(key string) *SuccessVariant {
	for i := range s.SuccessVariants {
		if s.SuccessVariants[i].Key == key {
			return &s.SuccessVariants[i]
		}
	}
	return nil
}

// DefaultTenantSettings are the values written on first access.
func DefaultTenantSettings(tenant string) *TenantSettings {
	return &TenantSettings{
		Tenant:           tenant,
		WhatsAppEnabled:  true,
		WhatsAppOnSubmit: false,
		SuccessTitle:     "Obrigado!",
		SuccessMessage:   "Recebemos seus dados. Em breve entraremos em contato.",
		UpdatedAt:        time.Now().UTC(),
	}
}
