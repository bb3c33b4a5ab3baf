package normalizer

import (
	"strings"

	"hermannm.dev/enumnames"
)

// Role is a canonical meaning a result column can carry for consumers, regardless of which backend
// named it.
type Role int8

const (
	RoleRevenue Role = iota + 1
	RoleCount
	RoleDate
)

var roleNames = enumnames.NewMap(map[Role]string{
	RoleRevenue: "revenue",
	RoleCount:   "count",
	RoleDate:    "date",
})

func (role Role) IsValid() bool {
	return roleNames.ContainsEnumValue(role)
}

func (role Role) String() string {
	return roleNames.GetNameOrFallback(role, "INVALID_ROLE")
}

func (role Role) MarshalJSON() ([]byte, error) {
	return roleNames.MarshalToNameJSON(role)
}

func (role *Role) UnmarshalJSON(bytes []byte) error {
	return roleNames.UnmarshalFromNameJSON(bytes, role)
}

type roleRule struct {
	pattern string
	role    Role
}

// Evaluated in order, first match wins. Revenue comes before count so that e.g. "revenue_per_order"
// is a revenue column.
var roleRules = []roleRule{
	{"revenue", RoleRevenue},
	{"sales", RoleRevenue},
	{"amount", RoleRevenue},
	{"count", RoleCount},
	{"orders", RoleCount},
	{"items", RoleCount},
	{"volume", RoleCount},
	{"date", RoleDate},
	{"month", RoleDate},
}

// Match finds the role of a column by case-insensitive substring match. ok is false if no rule
// matches.
func Match(column string) (role Role, ok bool) {
	column = strings.ToLower(column)
	for _, rule := range roleRules {
		if strings.Contains(column, rule.pattern) {
			return rule.role, true
		}
	}
	return 0, false
}
