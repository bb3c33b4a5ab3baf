package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"hermannm.dev/enumnames"
	"hermannm.dev/wrap"
)

type SortOrder int8

const (
	SortOrderAscending SortOrder = iota + 1
	SortOrderDescending
)

// Names as expected by the metrics service's order clause.
var sortOrderMap = enumnames.NewMap(map[SortOrder]string{
	SortOrderAscending:  "asc",
	SortOrderDescending: "desc",
})

func (sortOrder SortOrder) IsValid() bool {
	return sortOrderMap.ContainsEnumValue(sortOrder)
}

func (sortOrder SortOrder) String() string {
	return sortOrderMap.GetNameOrFallback(sortOrder, "INVALID_SORT_ORDER")
}

func (sortOrder SortOrder) MarshalJSON() ([]byte, error) {
	return sortOrderMap.MarshalToNameJSON(sortOrder)
}

// Accepts any casing, plus the long forms ("ascending"/"descending"), since orders often come from
// generated text.
func (sortOrder *SortOrder) UnmarshalJSON(bytes []byte) error {
	var name string
	if err := json.Unmarshal(bytes, &name); err != nil {
		return wrap.Error(err, "sort order must be a string")
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "asc", "ascending":
		*sortOrder = SortOrderAscending
	case "desc", "descending":
		*sortOrder = SortOrderDescending
	default:
		return fmt.Errorf("invalid sort order '%s' (must be 'asc' or 'desc')", name)
	}

	return nil
}
