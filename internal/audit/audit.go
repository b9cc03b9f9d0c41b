// Package audit records privileged changes to profiles and their linked
// identities. Writes are best-effort: a failing sink is logged and never
// fails the change being recorded.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andredfaria/daily/internal/observability"
)

type Action string

const (
	ActionLink           Action = "link"
	ActionUnlink         Action = "unlink"
	ActionEmailChange    Action = "email_change"
	ActionPasswordChange Action = "password_change"
	ActionRoleChange     Action = "role_change"
)

// Record describes one change. Detail must never carry secrets.
type Record struct {
	ActorID    string         `json:"actor_id"`
	ActorEmail string         `json:"actor_email"`
	ProfileID  int64          `json:"profile_id"`
	Action     Action         `json:"action"`
	IdentityID *string        `json:"identity_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

type Sink interface {
	Name() string
	Write(ctx context.Context, record Record) error
}

type Recorder struct {
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewRecorder(logger *zap.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		sinks:   sinks,
		logger:  logger.Named("audit"),
		timeout: 3 * time.Second,
		now:     time.Now,
	}
}

// Record writes rec to every sink in order. It detaches from the request
// context so a client disconnect does not drop the record.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if r == nil {
		return
	}
	if rec.At.IsZero() {
		rec.At = r.now().UTC()
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	for _, sink := range r.sinks {
		err := sink.Write(writeCtx, rec)
		observability.RecordAuditWrite(sink.Name(), err)
		if err != nil {
			r.logger.Error("audit write failed",
				zap.String("sink", sink.Name()),
				zap.String("action", string(rec.Action)),
				zap.Int64("profile_id", rec.ProfileID),
				zap.Error(err),
			)
		}
	}
}

// LogSink emits records as structured log lines.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, rec Record) error {
	fields := []zap.Field{
		zap.String("actor_id", rec.ActorID),
		zap.String("actor_email", rec.ActorEmail),
		zap.Int64("profile_id", rec.ProfileID),
		zap.String("action", string(rec.Action)),
		zap.Time("at", rec.At),
	}
	if rec.IdentityID != nil {
		fields = append(fields, zap.String("identity_id", *rec.IdentityID))
	}
	if len(rec.Detail) > 0 {
		fields = append(fields, zap.Any("detail", rec.Detail))
	}
	s.logger.Info("audit", fields...)
	return nil
}
