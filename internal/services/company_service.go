package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

type CompanyService interface {
	Create(ctx context.Context, c *models.Company) error
	Update(ctx context.Context, c *models.Company) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Company, error)
	List(ctx context.Context, f models.CompanyFilter) ([]*models.Company, error)
}

type companyService struct {
	repo repositories.CompanyRepository
}

func NewCompanyService(repo repositories.CompanyRepository) CompanyService {
	return &companyService{repo: repo}
}

func normalizeCompany(c *models.Company) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Domain = strings.ToLower(strings.TrimSpace(c.Domain))
	c.Domain = strings.TrimPrefix(strings.TrimPrefix(c.Domain, "https://"), "http://")
	c.Domain = strings.TrimPrefix(strings.TrimSuffix(c.Domain, "/"), "www.")
	if c.Name == "" {
		return fmt.Errorf("%w: company name is required", models.ErrInvalidInput)
	}
	return nil
}

// checkDomain keeps domains unique per tenant.
func (s *companyService) checkDomain(ctx context.Context, c *models.Company) error {
	if c.Domain == "" {
		return nil
	}
	existing, err := s.repo.GetByDomain(ctx, c.Domain)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != c.ID:
		return fmt.Errorf("%w: domain %s already belongs to company %d", models.ErrConflict, c.Domain, existing.ID)
	}
	return nil
}

func (s *companyService) Create(ctx context.Context, c *models.Company) error {
	if err := normalizeCompany(c); err != nil {
		return err
	}
	if err := s.checkDomain(ctx, c); err != nil {
		return err
	}
	return s.repo.Create(ctx, c)
}

func (s *companyService) Update(ctx context.Context, c *models.Company) error {
	if err := normalizeCompany(c); err != nil {
		return err
	}
	if err := s.checkDomain(ctx, c); err != nil {
		return err
	}
	return s.repo.Update(ctx, c)
}

func (s *companyService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *companyService) GetByID(ctx context.Context, id int64) (*models.Company, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *companyService) List(ctx context.Context, f models.CompanyFilter) ([]*models.Company, error) {
	return s.repo.List(ctx, f)
}
