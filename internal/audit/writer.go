package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	"github.com/hangxigood/ERP-MES-sub000/internal/metrics"

	"github.com/google/uuid"
)

// RecordVersionRequest is the state of a section right after an accepted update.
type RecordVersionRequest struct {
	SectionRef  uuid.UUID
	SectionName string
	Fields      []domain.Field
	Actor       domain.Actor
	ClientInfo  map[string]any
}

func (req RecordVersionRequest) validate() error {
	if req.SectionRef == uuid.Nil {
		return fmt.Errorf("%w: sectionRef is required", domain.ErrInvalidFieldShape)
	}
	if req.Actor.UserID == uuid.Nil {
		return fmt.Errorf("%w: actor user id is required", domain.ErrInvalidFieldShape)
	}
	return domain.ValidateFields(req.Fields)
}

// RecordVersion appends the next version of a section. Concurrent writers may
// claim the same version number; the loser re-reads the latest version and
// retries until the configured attempt budget is spent.
func (s *Service) RecordVersion(ctx context.Context, req RecordVersionRequest) (domain.FieldSnapshot, error) {
	if err := req.validate(); err != nil {
		s.metrics.VersionsRecorded.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return domain.FieldSnapshot{}, err
	}

	fields := domain.CloneFields(req.Fields)
	if fields == nil {
		fields = []domain.Field{}
	}
	snapshot := domain.FieldSnapshot{
		SectionRef:  req.SectionRef,
		SectionName: strings.TrimSpace(req.SectionName),
		Fields:      fields,
		Actor:       req.Actor,
		ClientInfo:  req.ClientInfo,
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxWriteRetries; attempt++ {
		latest, err := s.snapshots.MaxVersion(ctx, req.SectionRef)
		if err != nil {
			s.metrics.VersionsRecorded.WithLabelValues(metrics.OutcomeError).Inc()
			return domain.FieldSnapshot{}, storeError(err, "read latest section version")
		}

		id, err := s.newID()
		if err != nil {
			s.metrics.VersionsRecorded.WithLabelValues(metrics.OutcomeError).Inc()
			return domain.FieldSnapshot{}, fmt.Errorf("failed to generate snapshot id: %w", err)
		}

		snapshot.ID = id
		snapshot.Version = latest + 1
		snapshot.Timestamp = s.clock.Now().UTC()

		stored, err := s.snapshots.Insert(ctx, snapshot)
		if err == nil {
			s.metrics.VersionsRecorded.WithLabelValues(metrics.OutcomeSuccess).Inc()
			s.logger.DebugContext(ctx, "field snapshot recorded",
				"section_ref", stored.SectionRef,
				"version", stored.Version,
				"attempt", attempt,
			)
			return stored, nil
		}
		if !errors.Is(err, domain.ErrConcurrentVersionConflict) {
			s.metrics.VersionsRecorded.WithLabelValues(metrics.OutcomeError).Inc()
			return domain.FieldSnapshot{}, storeError(err, "insert field snapshot")
		}

		s.metrics.VersionConflicts.Inc()
		s.logger.InfoContext(ctx, "version conflict, retrying",
			"section_ref", req.SectionRef,
			"version", snapshot.Version,
			"attempt", attempt,
		)
		lastErr = err
	}

	s.metrics.VersionsRecorded.WithLabelValues(metrics.OutcomeConflict).Inc()
	return domain.FieldSnapshot{}, fmt.Errorf("failed to record version of section %s after %d attempts: %w", req.SectionRef, s.maxWriteRetries, lastErr)
}

// PurgeSection removes every snapshot of a section. It backs section deletion;
// nothing else ever removes snapshots.
func (s *Service) PurgeSection(ctx context.Context, sectionRef uuid.UUID) (int64, error) {
	if sectionRef == uuid.Nil {
		return 0, fmt.Errorf("%w: sectionRef is required", domain.ErrInvalidQuery)
	}

	removed, err := s.snapshots.DeleteBySection(ctx, sectionRef)
	if err != nil {
		return 0, storeError(err, "purge section snapshots")
	}
	s.logger.InfoContext(ctx, "section snapshots purged", "section_ref", sectionRef, "removed", removed)
	return removed, nil
}
