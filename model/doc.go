// Package model contains the approval request entity and the small value
// types exchanged between the store, the lifecycle manager and the
// notification channel.
package model
