package models

import "fmt"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleShopper  Role = "shopper"
)

// Actor is the authenticated caller of a lifecycle operation. ID is the
// role-specific id (customer id or shopper id), not the user id.
type Actor struct {
	Role   Role
	ID     int64
	UserID int64
	Email  string
}

func CustomerActor(c Customer) Actor {
	return Actor{Role: RoleCustomer, ID: c.ID, UserID: c.User.ID, Email: c.User.Email}
}

func ShopperActor(s Shopper) Actor {
	return Actor{Role: RoleShopper, ID: s.ID, UserID: s.User.ID, Email: s.User.Email}
}

func (a Actor) IsCustomer(id int64) bool { return a.Role == RoleCustomer && a.ID == id }

func (a Actor) IsShopper(id int64) bool { return a.Role == RoleShopper && a.ID == id }

func (a Actor) String() string {
	return fmt.Sprintf("%s:%d", a.Role, a.ID)
}
