package resource

import (
	"fmt"

	"github.com/ashita-ai/tracecrud/internal/auth"
)

// Users describes the users table. Keys are assigned by the store. The
// password is hashed before binding and is never read back.
func Users() Definition[int64] {
	return Definition[int64]{
		Name:        "users",
		Singular:    "user",
		Label:       "User",
		PluralLabel: "Users",
		Columns: []Column{
			{Name: "username", Type: String, Required: true, Rule: "max=50"},
			{Name: "email", Type: String, Required: true, Rule: "email,max=100"},
			{Name: "password", Type: String, Secret: true, Rule: "max=256", Transform: hashPassword},
		},
		UpdateColumns:   []string{"username", "email"},
		RequiredMessage: "Username and Email are required",
		Key:             Int64Key(),
	}
}

func hashPassword(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("password is %T, not string", v)
	}
	return auth.HashPassword(s)
}
