// Package withdrawal: executor.go описывает передачу списания внешнему исполнителю.
package withdrawal

import (
	"context"

	log "github.com/sirupsen/logrus"

	"bitbee.app/rewards-core/internal/common"
)

// Executor выполняет реальный перевод вне системы.
// Успех или неудача перевода не меняют леджер: списание уже зафиксировано.
type Executor interface {
	Execute(ctx context.Context, in Instruction) error
}

// LogExecutor только пишет поручение в лог.
type LogExecutor struct{}

// Execute логирует поручение.
func (LogExecutor) Execute(_ context.Context, in Instruction) error {
	fields := log.Fields{
		"account_id":  in.Event.AccountID,
		"event_id":    in.Event.ID,
		"amount":      common.FormatAmount(in.Event.Asset, in.Event.Amount.Neg()),
		"destination": in.Destination,
	}
	if in.Estimate != nil {
		fields["estimate"] = in.Estimate.Display
	}
	log.WithFields(fields).Info("Поручение на вывод передано исполнителю")
	return nil
}
