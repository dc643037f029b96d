package dunning

// Notice identifies a dunning email in the recovery sequence.
type Notice string

const (
	NoticePaymentFailed Notice = "payment_failed"
	NoticeReminder      Notice = "reminder"
	NoticeGracePeriod   Notice = "grace_period"
	NoticeUrgent        Notice = "urgent"
	NoticeSuspension    Notice = "suspension"
)

// Escalation is a state change driven by the schedule.
type Escalation int

const (
	EscalateNone Escalation = iota

	// EscalateGrace moves vencida to grace_period and stamps the grace
	// deadline. This is the only path into grace_period.
	EscalateGrace

	// EscalateSuspend moves grace_period to suspendida.
	EscalateSuspend
)

// Step is one entry in the dunning sequence. Day counts whole days since
// the subscription entered vencida.
type Step struct {
	Day      int
	Notice   Notice
	Escalate Escalation
}

// DefaultSchedule is the standard recovery sequence. Emails and state
// changes interleave over two weeks; after the last step the subscription
// sits in suspendida until the subscriber pays or an operator cancels.
var DefaultSchedule = []Step{
	{Day: 0, Notice: NoticePaymentFailed},
	{Day: 3, Notice: NoticeReminder},
	{Day: 7, Notice: NoticeGracePeriod, Escalate: EscalateGrace},
	{Day: 10, Notice: NoticeUrgent},
	{Day: 14, Notice: NoticeSuspension, Escalate: EscalateSuspend},
}

// graceEntryDay returns the day the schedule enters grace_period, and
// suspensionDay the day it suspends. Both fall back to the defaults when
// the schedule omits the escalation.
func graceEntryDay(schedule []Step) int {
	for _, s := range schedule {
		if s.Escalate == EscalateGrace {
			return s.Day
		}
	}
	return 7
}

func suspensionDay(schedule []Step) int {
	for _, s := range schedule {
		if s.Escalate == EscalateSuspend {
			return s.Day
		}
	}
	return 14
}
