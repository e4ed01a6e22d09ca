package circulation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "library_circulation/circulation"

// Service implements the circulation state machine over a Store.
type Service struct {
	store    Store
	notifier Notifier
	audit    AuditSink
	policy   Policy
	now      func() time.Time
	log      *slog.Logger

	tracer trace.Tracer
	ops    metric.Int64Counter
}

type Option func(*Service)

func WithPolicy(p Policy) Option            { return func(s *Service) { s.policy = p } }
func WithNotifier(n Notifier) Option        { return func(s *Service) { s.notifier = n } }
func WithAuditSink(a AuditSink) Option      { return func(s *Service) { s.audit = a } }
func WithLogger(l *slog.Logger) Option      { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithTracerProvider replaces the global tracer provider, mainly for tests.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: nopNotifier{},
		audit:    nopAudit{},
		policy:   DefaultPolicy(),
		now:      time.Now,
		log:      slog.Default(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"circulation_operations_total",
		metric.WithDescription("circulation operations by name and outcome"),
	)
	if err == nil {
		s.ops = counter
	}
	return s
}

func (s *Service) Policy() Policy { return s.policy }

func (s *Service) clock() time.Time { return s.now().UTC() }

// newID 使用 UUIDv7：按时间递增，预约队列同一时刻的并列按 id 排序即创建顺序。
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// inTx runs fn in one transaction: commit on success, rollback on error or panic.
func (s *Service) inTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return storageErr(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.WarnContext(ctx, "rollback failed", slog.Any("error", rbErr))
		}
		return storageErr(err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err)
	}
	return nil
}

// observe wraps an operation with a span, an outcome counter and error logging.
// NotFound / Precondition 是预期结果，不按错误记录。
func (s *Service) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "circulation."+op)
	defer span.End()

	err := fn(ctx)

	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
		span.SetAttributes(attribute.String("circulation.reason", string(ReasonOf(err))))
		switch KindOf(err) {
		case KindNotFound, KindPrecondition:
			s.log.DebugContext(ctx, "operation rejected", slog.String("op", op), slog.String("reason", string(ReasonOf(err))))
		case KindConflict:
			span.SetStatus(codes.Error, err.Error())
			s.log.InfoContext(ctx, "operation conflicted", slog.String("op", op), slog.Any("error", err))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.ErrorContext(ctx, "operation failed", slog.String("op", op), slog.Any("error", err))
		}
	}
	if s.ops != nil {
		s.ops.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))
	}
	return err
}

// record / notify 在提交后调用，失败只记日志。
func (s *Service) record(ctx context.Context, entityType, entityID, action string, before, after any) {
	if err := s.audit.Record(ctx, entityType, entityID, action, before, after); err != nil {
		s.log.WarnContext(ctx, "audit record failed",
			slog.String("entity", entityType), slog.String("id", entityID),
			slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, memberID string, kind NotificationKind, subject, message string) {
	if err := s.notifier.Notify(ctx, memberID, kind, subject, message); err != nil {
		s.log.WarnContext(ctx, "notification failed",
			slog.String("member", memberID), slog.String("kind", string(kind)), slog.Any("error", err))
	}
}

// warnInconsistency 记录可恢复的数据不一致（例如余额会变成负数被钳到 0）。
func (s *Service) warnInconsistency(ctx context.Context, msg string, attrs ...any) {
	err := &Error{Kind: KindDataInconsistency, Reason: ReasonNegativeBalance, Message: msg}
	s.log.WarnContext(ctx, "data inconsistency", append([]any{slog.Any("error", err)}, attrs...)...)
}

func requireID(kind, id string) error {
	if id == "" {
		return precondition(ReasonInvalidInput, "%s id is required", kind)
	}
	return nil
}

func money(d decimal.Decimal) string { return "$" + d.StringFixed(2) }
