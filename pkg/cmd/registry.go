package cmd

import (
	"log/slog"

	"github.com/rulegate/rulegate/pkg/actions/assignowner"
	"github.com/rulegate/rulegate/pkg/actions/createrecord"
	"github.com/rulegate/rulegate/pkg/actions/notify"
	"github.com/rulegate/rulegate/pkg/actions/sendemail"
	"github.com/rulegate/rulegate/pkg/actions/tag"
	"github.com/rulegate/rulegate/pkg/actions/updatefield"
	"github.com/rulegate/rulegate/pkg/actions/webhook"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/registry"
)

// NewRegistry builds the action registry with every native action except
// run_sub_workflow, which needs the runner and is registered once the runner
// exists. Email and notifications go through the log-backed adapters until a
// real provider is wired in.
func NewRegistry(logger *slog.Logger, records persistence.RecordRepository) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(updatefield.NewActionFactory(records))
	reg.RegisterAction(createrecord.NewActionFactory(records))
	reg.RegisterAction(assignowner.NewActionFactory(records))
	reg.RegisterAction(tag.NewAddFactory(records))
	reg.RegisterAction(tag.NewRemoveFactory(records))
	reg.RegisterAction(webhook.NewActionFactory())
	reg.RegisterAction(notify.NewActionFactory(&notify.LogNotifier{Logger: logger}))
	reg.RegisterAction(sendemail.NewActionFactory(&sendemail.LogSender{Logger: logger}))

	return reg
}
