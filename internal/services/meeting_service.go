package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

type MeetingService interface {
	// Create schedules a meeting. Unless allowOverlap is set, a clash with
	// another meeting of the organizer fails with ErrConflict.
	Create(ctx context.Context, m *models.Meeting, allowOverlap bool) error
	Update(ctx context.Context, m *models.Meeting, allowOverlap bool) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Meeting, error)
	List(ctx context.Context, f models.MeetingFilter) ([]*models.Meeting, error)
}

type meetingService struct {
	repo     repositories.MeetingRepository
	users    repositories.UserRepository
	notifier Notifier
	log      *zap.Logger
}

func NewMeetingService(repo repositories.MeetingRepository, users repositories.UserRepository, notifier Notifier, log *zap.Logger) MeetingService {
	return &meetingService{repo: repo, users: users, notifier: notifier, log: log}
}

func (s *meetingService) validate(ctx context.Context, m *models.Meeting) error {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}
	if m.StartsAt.IsZero() || !m.EndsAt.After(m.StartsAt) {
		return fmt.Errorf("%w: ends_at must be after starts_at", models.ErrInvalidInput)
	}
	m.AttendeeIDs = dedupeAttendees(m.AttendeeIDs, m.OrganizerID)
	for _, id := range m.AttendeeIDs {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return fmt.Errorf("%w: attendee %d: %v", models.ErrInvalidInput, id, err)
		}
	}
	return nil
}

// dedupeAttendees drops duplicates and the organizer, keeping order.
func dedupeAttendees(ids []int64, organizerID int64) []int64 {
	seen := map[int64]bool{organizerID: true}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (s *meetingService) checkOverlap(ctx context.Context, m *models.Meeting) error {
	clash, err := s.repo.FindOverlapping(ctx, []int64{m.OrganizerID}, m.StartsAt, m.EndsAt, m.ID)
	if err != nil {
		return err
	}
	if len(clash) > 0 {
		return fmt.Errorf("%w: overlaps meeting %d (%s)", models.ErrConflict, clash[0].ID, clash[0].Title)
	}
	return nil
}

func (s *meetingService) Create(ctx context.Context, m *models.Meeting, allowOverlap bool) error {
	if err := s.validate(ctx, m); err != nil {
		return err
	}
	if !allowOverlap {
		if err := s.checkOverlap(ctx, m); err != nil {
			return err
		}
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return err
	}
	s.invite(ctx, m, m.AttendeeIDs)
	return nil
}

// Update notifies only attendees that were added by this change.
func (s *meetingService) Update(ctx context.Context, m *models.Meeting, allowOverlap bool) error {
	current, err := s.repo.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	m.OrganizerID = current.OrganizerID
	if err := s.validate(ctx, m); err != nil {
		return err
	}
	if !allowOverlap {
		if err := s.checkOverlap(ctx, m); err != nil {
			return err
		}
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return err
	}
	had := make(map[int64]bool, len(current.AttendeeIDs))
	for _, id := range current.AttendeeIDs {
		had[id] = true
	}
	var added []int64
	for _, id := range m.AttendeeIDs {
		if !had[id] {
			added = append(added, id)
		}
	}
	s.invite(ctx, m, added)
	return nil
}

func (s *meetingService) invite(ctx context.Context, m *models.Meeting, userIDs []int64) {
	if s.notifier == nil {
		return
	}
	for _, uid := range userIDs {
		err := s.notifier.Notify(ctx, &models.Notification{
			UserID:     uid,
			Kind:       models.NotifyMeetingInvite,
			Title:      "Meeting: " + m.Title,
			Body:       m.StartsAt.Format("2006-01-02 15:04 MST") + " " + m.Location,
			EntityType: "meeting",
			EntityID:   m.ID,
		})
		if err != nil {
			s.log.Warn("[meetings][notify] invite failed", zap.Int64("meeting_id", m.ID), zap.Int64("user_id", uid), zap.Error(err))
		}
	}
}

func (s *meetingService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *meetingService) GetByID(ctx context.Context, id int64) (*models.Meeting, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *meetingService) List(ctx context.Context, f models.MeetingFilter) ([]*models.Meeting, error) {
	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		return nil, fmt.Errorf("%w: to must be after from", models.ErrInvalidInput)
	}
	return s.repo.List(ctx, f)
}
