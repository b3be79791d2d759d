package lifecycle

import (
	"github.com/centromex/shopping-buddy/internal/apperr"
	"github.com/centromex/shopping-buddy/internal/models"
)

// Op names a lifecycle operation for authorization.
type Op string

const (
	OpCreate          Op = "create"
	OpGet             Op = "get"
	OpListPending     Op = "list_pending"
	OpListForCustomer Op = "list_for_customer"
	OpListForShopper  Op = "list_for_shopper"
	OpAccept          Op = "accept"
	OpStartShopping   Op = "start_shopping"
	OpComplete        Op = "complete"
	OpAbandon         Op = "abandon"
	OpCancel          Op = "cancel"
	OpUpdate          Op = "update"
	OpShopperBalance  Op = "shopper_balance"
)

// relation is what the caller must be to the request.
type relation int

const (
	anyone   relation = iota // no request involved, or any holder of the role
	owner                    // the customer who created the request
	assignee                 // the shopper currently assigned
	party                    // owner or assignee
	viewer                   // party, or any shopper while the request is open
)

type rule struct {
	roles []models.Role
	rel   relation
}

var (
	customersOnly = []models.Role{models.RoleCustomer}
	shoppersOnly  = []models.Role{models.RoleShopper}
	bothRoles     = []models.Role{models.RoleCustomer, models.RoleShopper}
)

var rules = map[Op]rule{
	OpCreate:          {roles: customersOnly, rel: anyone},
	OpGet:             {roles: bothRoles, rel: viewer},
	OpListPending:     {roles: bothRoles, rel: anyone},
	OpListForCustomer: {roles: customersOnly, rel: anyone},
	OpListForShopper:  {roles: shoppersOnly, rel: anyone},
	OpAccept:          {roles: shoppersOnly, rel: anyone},
	OpStartShopping:   {roles: shoppersOnly, rel: assignee},
	OpComplete:        {roles: shoppersOnly, rel: assignee},
	OpAbandon:         {roles: shoppersOnly, rel: assignee},
	OpCancel:          {roles: bothRoles, rel: party},
	OpUpdate:          {roles: customersOnly, rel: owner},
	OpShopperBalance:  {roles: shoppersOnly, rel: anyone},
}

// authorize checks a against the rule for op. req may be nil for operations
// that do not target a request.
func authorize(op Op, a models.Actor, req *models.ShoppingRequest) error {
	r, ok := rules[op]
	if !ok {
		return apperr.Unauthorized("operation %s is not permitted", op)
	}

	if !hasRole(r.roles, a.Role) {
		return apperr.Unauthorized("%s is not permitted for role %q", op, a.Role)
	}

	if r.rel == anyone || req == nil {
		return nil
	}

	isOwner := a.IsCustomer(req.CustomerID)
	isAssignee := req.ShopperID != nil && a.IsShopper(*req.ShopperID)

	var allowed bool
	switch r.rel {
	case owner:
		allowed = isOwner
	case assignee:
		allowed = isAssignee
	case party:
		allowed = isOwner || isAssignee
	case viewer:
		allowed = isOwner || isAssignee ||
			(a.Role == models.RoleShopper && req.Status == models.StatusPending)
	}

	if !allowed {
		return apperr.Unauthorized("%s is not permitted on shopping request %d for %s", op, req.ID, a)
	}
	return nil
}

func hasRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
