package model

import "time"

// User represents an account as stored in the `users` table.  Accounts
// are created and kept in sync from the identity provider's token on each
// authenticated request; this service never stores credentials.
//
// Fields:
//  ID        – primary key identifier.
//  Email     – unique email address taken from the token.
//  Name      – display name (nullable).
//  Image     – avatar URL (nullable).
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type User struct {
    ID        uint64    // users.id
    Email     string    // users.email
    Name      *string   // users.name
    Image     *string   // users.image
    CreatedAt time.Time // users.created_at
    UpdatedAt time.Time // users.updated_at
}
