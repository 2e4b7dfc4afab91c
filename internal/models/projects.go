package models

import "time"

type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusArchived ProjectStatus = "archived"
	ProjectStatusDeleted  ProjectStatus = "deleted"
)

// Project is the parent entity statistics rows hang off. The status drives
// retention: only archived or deleted projects are eligible for cleanup.
type Project struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	Name        string        `gorm:"not null;type:varchar(255)" json:"name"`
	Description string        `gorm:"type:text" json:"description"`
	Status      ProjectStatus `gorm:"not null;default:'active';index;type:varchar(20)" json:"status"`
	CreatedAt   time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusArchived, ProjectStatusDeleted:
		return true
	}
	return false
}

// RetentionEligible reports whether statistics under this status may be
// removed by the cleanup sweep.
func (s ProjectStatus) RetentionEligible() bool {
	return s == ProjectStatusArchived || s == ProjectStatusDeleted
}

type ProjectCreateRequest struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name" validate:"required,min=1,max=255"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status,omitempty" validate:"omitempty,oneof=active archived deleted"`
}

type ProjectUpdateRequest struct {
	Name        string        `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string       `json:"description,omitempty"`
	Status      ProjectStatus `json:"status,omitempty" validate:"omitempty,oneof=active archived deleted"`
}

type ProjectResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (p *Project) ToResponse() *ProjectResponse {
	return &ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
