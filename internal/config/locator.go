package config

import (
	"fmt"
	"strconv"
	"time"

	elerrors "github.com/eventload/eventload/internal/errors"
	"github.com/eventload/eventload/pkg/types"
)

// DefaultFilename is the object name published each month.
const DefaultFilename = "events.csv"

// Locator names one source file by its parts.
type Locator struct {
	Host     string
	Year     string
	Month    string
	Filename string
}

// DefaultLocator returns the locator for the month containing now.
// The clock is supplied by the caller.
func DefaultLocator(now time.Time) Locator {
	return Locator{
		Host:     DefaultHost,
		Year:     fmt.Sprintf("%04d", now.Year()),
		Month:    fmt.Sprintf("%02d", int(now.Month())),
		Filename: DefaultFilename,
	}
}

// Validate checks that the locator is well formed: 4-digit year, month 1-12
// and non-empty host and filename. A 1-digit month is accepted and padded by Key.
func (l Locator) Validate() error {
	if l.Host == "" {
		return elerrors.NewValidationError(elerrors.CodeInvalidLocator, "host is required")
	}
	if l.Filename == "" {
		return elerrors.NewValidationError(elerrors.CodeInvalidLocator, "filename is required")
	}
	if len(l.Year) != 4 {
		return elerrors.NewValidationError(elerrors.CodeInvalidLocator,
			fmt.Sprintf("year must be 4 digits (YYYY), got %q", l.Year))
	}
	if !allDigits(l.Year) {
		return elerrors.NewValidationError(elerrors.CodeInvalidLocator,
			fmt.Sprintf("year must be numeric, got %q", l.Year))
	}
	m, err := strconv.Atoi(l.Month)
	if err != nil || !allDigits(l.Month) || len(l.Month) > 2 || m < 1 || m > 12 {
		return elerrors.NewValidationError(elerrors.CodeInvalidLocator,
			fmt.Sprintf("month must be 01-12 (MM), got %q", l.Month))
	}
	return nil
}

// Key returns the SourceFileKey for a validated locator.
func (l Locator) Key() (types.SourceFileKey, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	year, _ := strconv.Atoi(l.Year)
	month, _ := strconv.Atoi(l.Month)
	return types.NewSourceFileKey(l.Host, year, month, l.Filename), nil
}

// ObjectPath returns the object path relative to the host: YYYY/MM/filename.
func (l Locator) ObjectPath() string {
	return fmt.Sprintf("%s/%s/%s", l.Year, padMonth(l.Month), l.Filename)
}

// LocalName returns the default download file name, {year}_{month}.csv.
func (l Locator) LocalName() string {
	return fmt.Sprintf("%s_%s.csv", l.Year, padMonth(l.Month))
}

func padMonth(month string) string {
	if len(month) == 1 {
		return "0" + month
	}
	return month
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
