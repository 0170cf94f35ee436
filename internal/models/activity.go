package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ActivityTypeBoost   = "boost"
	ActivityTypeListing = "listing"
)

type Activity struct {
	bun.BaseModel `bun:"table:activities,alias:a"`

	ID          int64                  `bun:"id,pk,autoincrement" json:"id"`
	Type        string                 `bun:"type,notnull" json:"type"`
	Action      string                 `bun:"action,notnull" json:"action"`
	Description string                 `bun:"description,notnull" json:"description"`
	UserID      string                 `bun:"user_id,nullzero" json:"userId,omitempty"`
	ReferenceID string                 `bun:"reference_id,nullzero" json:"referenceId,omitempty"`
	Metadata    map[string]interface{} `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time              `bun:"created_at,notnull" json:"createdAt"`
}

type ActivityView struct {
	Activity
	TimeAgo string `json:"timeAgo"`
}
