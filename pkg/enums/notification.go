package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypePaymentFailed       NotificationType = "payment_failed"
	NotificationTypePaymentSkipped      NotificationType = "payment_skipped"
	NotificationTypeBillingExhausted    NotificationType = "billing_exhausted"
	NotificationTypeAccountDisconnected NotificationType = "account_disconnected"
	NotificationTypeSystem              NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePaymentFailed,
	NotificationTypePaymentSkipped,
	NotificationTypeBillingExhausted,
	NotificationTypeAccountDisconnected,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
