package dto

import "github.com/Music-Vine/conductor/internal/models"

// UserQuery mirrors the user listing filters.
type UserQuery struct {
	Role     string `form:"role" binding:"omitempty,oneof=SUPERADMIN ADMIN REVIEWER VIEWER"`
	Active   *bool  `form:"active"`
	Search   string `form:"search" binding:"max=100"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Filter converts the query into a repository filter.
func (q UserQuery) Filter() models.UserFilter {
	filter := models.UserFilter{
		Active:   q.Active,
		Search:   q.Search,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Role != "" {
		role := models.UserRole(q.Role)
		filter.Role = &role
	}
	return filter
}
