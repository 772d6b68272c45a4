package engerr

import (
	"errors"
	"fmt"
)

// Category classifies engine errors by how the cycle must react to them.
type Category string

const (
	// Recoverable per-instrument errors: the instrument (or pair) is
	// excluded from the current cycle and the cycle continues.
	CategoryInsufficientData Category = "INSUFFICIENT_DATA"
	CategoryInvalidPrice     Category = "INVALID_PRICE"
	CategoryCointegration    Category = "COINTEGRATION"

	// Transient connector errors, retried with backoff by the caller.
	CategoryConnector Category = "CONNECTOR"

	// Fatal: halts new risk-taking until an explicit external reset.
	CategoryRiskBreach Category = "RISK_BREACH"

	CategoryConfig Category = "CONFIG"
)

// Error is a categorized engine error with instrument context.
type Error struct {
	Category   Category
	Component  string
	Symbol     string
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("[%s:%s]", e.Category, e.Component)
	if e.Symbol != "" {
		s += " " + e.Symbol
	}
	s += " " + e.Message
	if e.Underlying != nil {
		s += ": " + e.Underlying.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Underlying }

// Is matches two engine errors by category, so sentinel checks like
// errors.Is(err, engerr.ErrInsufficientData) work on wrapped instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Category == t.Category
}

// Sentinels for errors.Is checks.
var (
	ErrInsufficientData = &Error{Category: CategoryInsufficientData, Message: "insufficient data"}
	ErrInvalidPrice     = &Error{Category: CategoryInvalidPrice, Message: "invalid price"}
	ErrCointegration    = &Error{Category: CategoryCointegration, Message: "cointegration test failed"}
	ErrConnector        = &Error{Category: CategoryConnector, Message: "connector failure"}
	ErrRiskBreach       = &Error{Category: CategoryRiskBreach, Message: "fatal risk breach"}
)

// New creates a categorized engine error.
func New(category Category, component, message string) *Error {
	return &Error{Category: category, Component: component, Message: message}
}

// Wrap attaches category and component context to an existing error.
func Wrap(err error, category Category, component, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Component: component, Message: message, Underlying: err}
}

// WithSymbol attaches the affected instrument.
func (e *Error) WithSymbol(symbol string) *Error {
	e.Symbol = symbol
	return e
}

// InsufficientData reports that a series is shorter than the required
// lookback. Callers must treat this as "skip instrument this cycle".
func InsufficientData(component, symbol string, have, need int) *Error {
	return &Error{
		Category:  CategoryInsufficientData,
		Component: component,
		Symbol:    symbol,
		Message:   fmt.Sprintf("need %d points, have %d", need, have),
	}
}

// InvalidPrice reports a non-positive or non-finite price in a series.
func InvalidPrice(component, symbol string, value float64) *Error {
	return &Error{
		Category:  CategoryInvalidPrice,
		Component: component,
		Symbol:    symbol,
		Message:   fmt.Sprintf("invalid price %v", value),
	}
}

// Recoverable reports whether the error only excludes one instrument or
// pair from the current cycle, as opposed to failing the cycle.
func Recoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Category {
	case CategoryInsufficientData, CategoryInvalidPrice, CategoryCointegration:
		return true
	}
	return false
}

// Retryable reports whether the caller may retry the operation with backoff.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Category == CategoryConnector
}
