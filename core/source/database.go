package source

import (
	"fmt"

	"civisync/core/utils"

	"gorm.io/gorm"
)

// NewDatabaseSource reads staged import records from the given table. The
// whole table is one batch; rows are yielded in the table's natural order.
func NewDatabaseSource(db *gorm.DB, table string) (Source, error) {
	var rows []map[string]any
	if err := db.Table(table).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read staging table %q: %w", table, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		record := Record{}
		for column, value := range row {
			if value == nil {
				continue
			}
			record[column] = utils.ToString(value)
		}
		records = append(records, record)
	}

	return &sliceSource{records: records}, nil
}
