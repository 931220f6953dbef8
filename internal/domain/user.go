package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Username     string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}
