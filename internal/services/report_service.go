package services

import (
	"context"
	"fmt"
	"strings"

	"crmhub/internal/authz"
	"crmhub/internal/models"
	"crmhub/internal/reportquery"
	"crmhub/internal/repositories"
	"crmhub/internal/tenant"
)

type ReportService interface {
	Create(ctx context.Context, def *models.ReportDefinition) error
	Update(ctx context.Context, def *models.ReportDefinition) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.ReportDefinition, error)
	List(ctx context.Context, ownerID *int64) ([]*models.ReportDefinition, error)
	// Run executes def as the actor: own scope narrows rows to the actor's
	// records and field rules are applied to every row.
	Run(ctx context.Context, def *models.ReportDefinition, p *authz.Policy, actorID int64) (*models.ReportResult, error)
	Summary(ctx context.Context, p *authz.Policy, actorID int64) (*models.PipelineSummary, error)
}

type reportService struct {
	repo     repositories.ReportRepository
	deals    repositories.DealRepository
	contacts repositories.ContactRepository
}

func NewReportService(repo repositories.ReportRepository, deals repositories.DealRepository, contacts repositories.ContactRepository) ReportService {
	return &reportService{repo: repo, deals: deals, contacts: contacts}
}

func validateDefinition(def *models.ReportDefinition) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", models.ErrInvalidInput)
	}
	return reportquery.Validate(def)
}

func (s *reportService) Create(ctx context.Context, def *models.ReportDefinition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	return s.repo.Create(ctx, def)
}

func (s *reportService) Update(ctx context.Context, def *models.ReportDefinition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	return s.repo.Update(ctx, def)
}

func (s *reportService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *reportService) GetByID(ctx context.Context, id int64) (*models.ReportDefinition, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *reportService) List(ctx context.Context, ownerID *int64) ([]*models.ReportDefinition, error) {
	return s.repo.List(ctx, ownerID)
}

func (s *reportService) Run(ctx context.Context, def *models.ReportDefinition, p *authz.Policy, actorID int64) (*models.ReportResult, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	ent, ok := reportquery.Lookup(def.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: unknown report entity %q", models.ErrInvalidInput, def.Entity)
	}
	if !p.Allows(ent.Authz, authz.ActionView) {
		return nil, fmt.Errorf("%w: no view access to %s", models.ErrForbidden, ent.Name)
	}

	// hidden fields cannot be filtered or sorted on
	for _, f := range def.Filters {
		if p.FieldAccess(ent.Authz, f.Field) == authz.FieldHidden {
			return nil, fmt.Errorf("%w: cannot filter on %s.%s", models.ErrForbidden, ent.Name, f.Field)
		}
	}
	if def.SortBy != "" && p.FieldAccess(ent.Authz, def.SortBy) == authz.FieldHidden {
		return nil, fmt.Errorf("%w: cannot sort by %s.%s", models.ErrForbidden, ent.Name, def.SortBy)
	}

	req := reportquery.FromDefinition(def)
	req.TenantID = tid
	req.OwnerID = p.OwnerFilter(ent.Authz, authz.ActionView, actorID)
	q, err := reportquery.Build(req)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		p.RedactRow(ent.Authz, row)
	}

	cols := make([]string, 0, len(q.Columns))
	for _, c := range q.Columns {
		if p.FieldAccess(ent.Authz, c.Name) != authz.FieldHidden {
			cols = append(cols, c.Name)
		}
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return &models.ReportResult{Columns: cols, Rows: rows}, nil
}

func (s *reportService) Summary(ctx context.Context, p *authz.Policy, actorID int64) (*models.PipelineSummary, error) {
	if !p.Allows(authz.EntityDeal, authz.ActionView) {
		return nil, fmt.Errorf("%w: no view access to deals", models.ErrForbidden)
	}
	sum, err := s.deals.Summary(ctx, p.OwnerFilter(authz.EntityDeal, authz.ActionView, actorID))
	if err != nil {
		return nil, err
	}
	if p.Allows(authz.EntityContact, authz.ActionView) {
		byStage, err := s.contacts.CountByStage(ctx, p.OwnerFilter(authz.EntityContact, authz.ActionView, actorID))
		if err != nil {
			return nil, err
		}
		sum.ContactsByStage = byStage
	}
	return sum, nil
}
