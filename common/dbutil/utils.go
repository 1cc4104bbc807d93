package dbutil

import (
	"github.com/Aidin1998/txconsole/pkg/errors"
	"gorm.io/gorm"
)

// FindOne loads the first row matched by db into a T.
func FindOne[T any](db *gorm.DB) (*T, error) {
	var item T
	result := db.Limit(1).Find(&item)
	if result.Error != nil {
		return nil, WrapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.NotFound.Explain("not found")
	}
	return &item, nil
}
