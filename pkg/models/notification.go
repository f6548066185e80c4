package models

import "time"

type NotificationKind string

const (
	NotifyWelcome           NotificationKind = "welcome"
	NotifyProfileUpdated    NotificationKind = "profile_updated"
	NotifyOrderConfirmation NotificationKind = "order_confirmation"
	NotifyOrderDeleted      NotificationKind = "order_deleted"
)

func (k NotificationKind) Valid() bool {
	switch k {
	case NotifyWelcome, NotifyProfileUpdated, NotifyOrderConfirmation, NotifyOrderDeleted:
		return true
	}
	return false
}

type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FieldChange is one profile field as it reads after an update.
type FieldChange struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Notification is one outbound customer message. Order is set for order kinds;
// Changes for profile updates.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	To        Recipient        `json:"to"`
	Order     *Order           `json:"order,omitempty"`
	Changes   []FieldChange    `json:"changes,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
