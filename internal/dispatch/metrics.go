package dispatch

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"

	"github.com/khlayyel/alertsystem/pkg/models"
)

var (
	alertsSentTotal      = metrics.NewCounter(`alertsystem_alerts_sent_total`)
	alertsCancelledTotal = metrics.NewCounter(`alertsystem_alerts_cancelled_total`)
	alertsFailedTotal    = metrics.NewCounter(`alertsystem_alerts_failed_total`)
	remindersSentTotal   = metrics.NewCounter(`alertsystem_reminders_sent_total`)
	reminderTicksTotal   = metrics.NewCounter(`alertsystem_reminder_ticks_total`)
)

func channelSendCounter(channel models.Channel, ok bool) *metrics.Counter {
	status := "failure"
	if ok {
		status = "success"
	}
	return metrics.GetOrCreateCounter(fmt.Sprintf(`alertsystem_channel_sends_total{channel=%q,status=%q}`, channel, status))
}
