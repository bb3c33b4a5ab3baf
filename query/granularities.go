package query

import "hermannm.dev/enumnames"

// Granularity of a time window, as understood by the metrics service.
type Granularity int8

const (
	GranularityHour Granularity = iota + 1
	GranularityDay
	GranularityWeek
	GranularityMonth
	GranularityQuarter
	GranularityYear
)

var granularityMap = enumnames.NewMap(map[Granularity]string{
	GranularityHour:    "hour",
	GranularityDay:     "day",
	GranularityWeek:    "week",
	GranularityMonth:   "month",
	GranularityQuarter: "quarter",
	GranularityYear:    "year",
})

func (granularity Granularity) IsValid() bool {
	return granularityMap.ContainsEnumValue(granularity)
}

func (granularity Granularity) String() string {
	return granularityMap.GetNameOrFallback(granularity, "INVALID_GRANULARITY")
}

func (granularity Granularity) MarshalJSON() ([]byte, error) {
	return granularityMap.MarshalToNameJSON(granularity)
}

func (granularity *Granularity) UnmarshalJSON(bytes []byte) error {
	return granularityMap.UnmarshalFromNameJSON(bytes, granularity)
}
