// Package repository contains the persistence layer. The gateway and the REST
// handlers only touch durable state through these interfaces; in-memory
// presence and room state never lives here.
package repository

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotificationNotFound = errors.New("notification not found")
)
