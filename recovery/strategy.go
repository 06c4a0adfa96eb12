package recovery

import (
	"context"

	"github.com/AlfredDev/ftppool/errs"
)

// StrategyKind names one of the four fixed recovery actions spec §4.5
// maps every error kind to.
type StrategyKind string

const (
	StrategyReconnect         StrategyKind = "reconnect-with-backoff"
	StrategyAbortThenReconnect StrategyKind = "abort-then-reconnect"
	StrategyValidateAndFix    StrategyKind = "validate-and-fix"
	StrategyNoOp              StrategyKind = "no-op"
)

// strategyByKind is the fixed lookup table from spec §4.5, modeled as a
// table keyed by the error-kind tag rather than runtime subclassing
// (spec §9 "Dynamic dispatch of recovery strategies").
var strategyByKind = map[errs.Kind]StrategyKind{
	errs.KindConnectionError:   StrategyReconnect,
	errs.KindConnectionTimeout: StrategyReconnect,
	errs.KindConnectionClosed:  StrategyReconnect,
	errs.KindConnectionRefused: StrategyReconnect,
	errs.KindTransferError:     StrategyAbortThenReconnect,
	errs.KindDataConnectionError: StrategyValidateAndFix,
}

// StrategyFor returns the fixed recovery strategy for kind, defaulting
// to no-op for every kind not named in the table.
func StrategyFor(kind errs.Kind) StrategyKind {
	if s, ok := strategyByKind[kind]; ok {
		return s
	}
	return StrategyNoOp
}

// repairTrigger is the narrow capability this package needs from the
// Health Manager to carry out reconnect-with-backoff and
// validate-and-fix: repair marks the connection Failed→Repairing and
// attempts a rebind (spec §4.5: "marks the Connection Failed and
// invokes the Health Manager's repair").
type repairTrigger interface {
	Repair(ctx context.Context, connectionID string) error
}

// ApplyStrategy carries out the recovery action appropriate for kind
// against connectionID. abort-then-reconnect and validate-and-fix both
// resolve to the same underlying repair call here — aborting the
// in-flight transfer is the caller's responsibility before this runs,
// since only the caller holds the transfer's data-channel state.
func ApplyStrategy(ctx context.Context, repairer repairTrigger, connectionID string, kind errs.Kind) error {
	switch StrategyFor(kind) {
	case StrategyReconnect, StrategyAbortThenReconnect, StrategyValidateAndFix:
		return repairer.Repair(ctx, connectionID)
	default:
		return nil
	}
}
