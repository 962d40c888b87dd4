// Package suppression implements the global suppression list service.
//
// Entries are added by the delivery-event webhook for hard bounces and spam
// reports (internal/eventwebhook). Unsubscribe-link clicks and unsubscribe
// events go to the owner-scoped unsubscribe list instead, not here. Neither
// the verifier nor the dispatcher calls IsSuppressed before a send.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
