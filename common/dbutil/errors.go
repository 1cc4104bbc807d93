package dbutil

import (
	"context"

	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	DuplicateKeyErrorCode  = "23505"
	QueryCanceledErrorCode = "57014"
	SerializationErrorCode = "40001"
	ConnectionFailureClass = "08"
	InsufficientResources  = "53"
)

// WrapError translates a gorm or postgres error into the errors taxonomy.
// Raw driver text is kept as the cause only and never becomes the message.
func WrapError(err error) error {
	var pgErr *pgconn.PgError

	if err == nil {
		return nil
	} else if _, ok := err.(*errors.Error); ok {
		return err
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound.Explain("not found").Wrap(err)
	} else if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Unavailable.Explain("storage did not answer in time").Wrap(err)
	} else if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == DuplicateKeyErrorCode:
			return errors.Conflict.Explain("duplication of key").Wrap(err)
		case pgErr.Code == SerializationErrorCode:
			return errors.Conflict.Explain("concurrent update").Wrap(err)
		case pgErr.Code == QueryCanceledErrorCode,
			len(pgErr.Code) >= 2 && (pgErr.Code[:2] == ConnectionFailureClass || pgErr.Code[:2] == InsufficientResources):
			return errors.Unavailable.Explain("storage unavailable").Wrap(err)
		}
	} else if pgconn.Timeout(err) {
		return errors.Unavailable.Explain("storage unavailable").Wrap(err)
	}

	return errors.Internal.Explain("storage error").Wrap(err)
}
