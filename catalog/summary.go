package catalog

import (
	"fmt"
	"strings"
)

// SchemaSummary renders the catalog as prompt context for query synthesis.
func SchemaSummary(project string, dataset string) string {
	var summary strings.Builder

	summary.WriteString("#### WAREHOUSE TABLES\n")
	summary.WriteString(
		fmt.Sprintf("Qualify every table as `%s`.\n", QualifiedName(project, dataset, "<table_name>")),
	)
	for _, kind := range []string{KindDimension, KindFact} {
		for _, table := range tables {
			if table.Kind != kind {
				continue
			}

			summary.WriteString("- `")
			summary.WriteString(table.Name)
			summary.WriteString("`: ")
			summary.WriteString(table.Description)
			if table.Grain != "" {
				summary.WriteString(". Grain: ")
				summary.WriteString(table.Grain)
			}
			if len(table.Columns) != 0 {
				summary.WriteString(". Columns: ")
				summary.WriteString(strings.Join(table.Columns, ", "))
			}
			summary.WriteByte('\n')
		}
	}

	summary.WriteString("\n#### GOVERNED METRICS\n")
	for _, cube := range cubes {
		summary.WriteString("- `")
		summary.WriteString(cube.Name)
		summary.WriteString("`: measures ")
		summary.WriteString(strings.Join(cube.Measures, ", "))
		summary.WriteString("; dimensions ")
		summary.WriteString(strings.Join(cube.Dimensions, ", "))
		if len(cube.TimeDimensions) != 0 {
			summary.WriteString("; time dimensions ")
			summary.WriteString(strings.Join(cube.TimeDimensions, ", "))
		}
		summary.WriteByte('\n')
	}

	return summary.String()
}
