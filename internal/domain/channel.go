package domain

import "time"

type Channel struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description *string   `db:"description"`
	IsPrivate   bool      `db:"is_private"`
	OwnerID     string    `db:"owner_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Readable reports whether a user with the given membership state may read the channel.
func (c *Channel) Readable(userID string, isMember bool) bool {
	return !c.IsPrivate || isMember || c.OwnerID == userID
}

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

type Membership struct {
	UserID    string    `db:"user_id"`
	ChannelID string    `db:"channel_id"`
	Role      Role      `db:"role"`
	JoinedAt  time.Time `db:"joined_at"`
}
