package paper

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
	"github.com/uhyunpark/papertrade/pkg/app/core/risk"
)

// Errors returned by the engine. Match with errors.Is; risk rejections also
// satisfy errors.As(err, **risk.RejectedError) for the reason code.
var (
	ErrValidation             = errors.New("validation error")
	ErrRiskRejected           = risk.ErrRejected
	ErrInvalidStateTransition = order.ErrInvalidTransition
	ErrStalePriceData         = errors.New("stale price data")
	ErrPositionNotFound       = account.ErrPositionNotFound
	ErrOrderNotFound          = errors.New("order not found")
	ErrPersistenceFailure     = errors.New("persistence failure")
	ErrEngineClosed           = errors.New("engine closed")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
