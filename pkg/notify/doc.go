// Package notify delivers alerts for violations and approval decisions.
//
// A Dispatcher subscribes to ViolationDetected and ApprovalDecided events,
// turns each into a Notification and hands it to every configured Notifier.
// Violations below the configured minimum severity are not sent. Notifier
// failures are logged and counted; they never affect the engine.
package notify
