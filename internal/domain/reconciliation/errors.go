package reconciliation

import "errors"

var ErrDiscrepancyNotFound = errors.New("discrepancy not found")
