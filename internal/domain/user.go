package domain

// User is the author projection owned by the auth provider.
type User struct {
	ID    string  `db:"id"`
	Name  *string `db:"name"`
	Email string  `db:"email"`
	Image *string `db:"image"`
}
