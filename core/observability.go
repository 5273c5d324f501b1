package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Operation names are also metric prefixes: activation.<op>.total and
// activation.<op>.duration_ms.
const (
	opIssueActivation   = "issue_activation"
	opRetryNotification = "retry_notification"
)

// observe counts and times one issuance operation, tagged with its outcome
// and tier, and logs the result.
func (s *Service) observe(
	ctx context.Context,
	startedAt time.Time,
	op string,
	outcome ActivationOutcome,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	elapsed := s.now().Sub(startedAt)
	tags := map[string]string{"operation": op, "status": "success"}
	if err != nil {
		tags["status"] = "failure"
	}
	if outcome.Status != "" {
		tags["outcome"] = string(outcome.Status)
	}
	if outcome.Activation != nil && outcome.Activation.Tier != "" {
		tags["tier"] = string(outcome.Activation.Tier)
	}
	s.recordCounter(ctx, "activation."+op+".total", 1, tags)
	s.recordHistogram(ctx, "activation."+op+".duration_ms", float64(elapsed.Milliseconds()), tags)

	logged := cloneFields(fields)
	for key, value := range tags {
		logged[key] = value
	}
	logged["duration_ms"] = elapsed.Milliseconds()
	logged["notified"] = outcome.Notified
	switch {
	case err != nil:
		logged["error"] = err.Error()
		s.logError(ctx, op+" failed", logged)
	case outcome.Status == OutcomeUnrecognizedAmount, outcome.Status == OutcomeMissingCustomerEmail:
		// already warned with a text code where the purchase was rejected
		s.logInfo(ctx, op+" skipped", logged)
	default:
		s.logInfo(ctx, op+" succeeded", logged)
	}
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "info", message, fields)
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "warn", message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "error", message, fields)
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	LogWithLevel(ctx, s.logger, level, message, fields)
}

// LogWithLevel writes message with fields as sorted key/value pairs. Loggers
// that accept structured fields also receive them attached.
func LogWithLevel(ctx context.Context, logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := fieldArgs(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn", "warning":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, name, value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, name, value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields)+4)
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func fieldArgs(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
