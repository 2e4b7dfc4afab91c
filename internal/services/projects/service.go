package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/nibernar/statistics-service/internal/models"
	"github.com/nibernar/statistics-service/internal/services/statistics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrDuplicateProjectID = errors.New("project with this ID already exists")
	ErrInvalidStatus      = errors.New("invalid project status")
)

// Service manages the project records statistics hang off. Projects are the
// retention anchor: archived and deleted projects mark their statistics for
// the cleanup sweep.
type Service struct {
	db    *gorm.DB
	stats *statistics.Service
}

func NewService(db *gorm.DB, stats *statistics.Service) *Service {
	return &Service{
		db:    db,
		stats: stats,
	}
}

func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&models.Project{})
}

func (s *Service) CreateProject(ctx context.Context, req *models.ProjectCreateRequest) (*models.Project, error) {
	if req.Status == "" {
		req.Status = models.ProjectStatusActive
	}
	if !req.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	project := &models.Project{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
	}
	if project.ID == "" {
		project.ID = uuid.New().String()
	}

	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateProjectID
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return project, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Where("id = ?", projectID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	return &project, nil
}

func (s *Service) ListProjects(ctx context.Context, status models.ProjectStatus, limit, offset int) ([]models.Project, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")

	if status != "" {
		if !status.IsValid() {
			return nil, ErrInvalidStatus
		}
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var projects []models.Project
	if err := query.Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return projects, nil
}

func (s *Service) UpdateProject(ctx context.Context, projectID string, req *models.ProjectUpdateRequest) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Where("id = ?", projectID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	updates := make(map[string]any)
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != "" {
		if !req.Status.IsValid() {
			return nil, ErrInvalidStatus
		}
		updates["status"] = req.Status
	}

	if len(updates) > 0 {
		err = s.db.WithContext(ctx).Model(&project).Updates(updates).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update project: %w", err)
		}
	}

	return &project, nil
}

// SetStatus flips a project's lifecycle status without touching its
// statistics; archived and deleted projects become eligible for the
// retention sweep. This is the path project lifecycle webhooks take.
func (s *Service) SetStatus(ctx context.Context, projectID string, status models.ProjectStatus) error {
	if !status.IsValid() {
		return ErrInvalidStatus
	}

	res := s.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", projectID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update project status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProjectNotFound
	}

	return nil
}

// ArchiveProject marks a project archived, making its statistics eligible
// for the retention sweep without removing them.
func (s *Service) ArchiveProject(ctx context.Context, projectID string) error {
	return s.SetStatus(ctx, projectID, models.ProjectStatusArchived)
}

// DeleteProject removes the project row and cascades to its statistics so
// cache entries and downstream consumers are cleaned up immediately.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	res := s.db.WithContext(ctx).Where("id = ?", projectID).Delete(&models.Project{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProjectNotFound
	}

	if s.stats != nil {
		if _, err := s.stats.DeleteStatistics(ctx, projectID); err != nil {
			return fmt.Errorf("project deleted but statistics cleanup failed: %w", err)
		}
	}

	return nil
}
