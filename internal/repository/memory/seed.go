package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Music-Vine/conductor/internal/models"
	"github.com/Music-Vine/conductor/internal/workflow"
)

// seedNamespace keeps generated ids stable across restarts.
var seedNamespace = uuid.MustParse("6f1c2d0e-8a4b-4c53-9e0f-2b7d9a1c4e55")

var seedTitles = map[models.AssetKind][]string{
	models.AssetKindMusic:       {"Night Drive", "Paper Lanterns", "Golden Hour", "Low Tide"},
	models.AssetKindSoundEffect: {"Door Creak", "Glass Shatter", "Rain On Tin", "Crowd Murmur"},
	models.AssetKindVideo:       {"Sunset Timelapse", "City Aerial", "Forest Walk", "Ocean Drone"},
	models.AssetKindTemplate:    {"Lower Third Pack", "Logo Reveal", "Slideshow Kit", "Title Cards"},
}

// SeedID derives the stable id of the n-th seeded entity of a group.
func SeedID(group string, n int) string {
	return uuid.NewSHA1(seedNamespace, []byte(fmt.Sprintf("%s/%d", group, n))).String()
}

// Seed fills the stores with deterministic mock data: two assets per
// workflow state for every kind, and a small roster of console users.
func Seed(assets *AssetStore, users *UserStore, now time.Time) {
	now = now.UTC()
	n := 0
	for _, kind := range []models.AssetKind{models.AssetKindMusic, models.AssetKindSoundEffect, models.AssetKindVideo, models.AssetKindTemplate} {
		titles := seedTitles[kind]
		for _, state := range workflow.States(kind) {
			for copyN := 0; copyN < 2; copyN++ {
				created := now.Add(-time.Duration(n+1) * time.Hour)
				asset := models.Asset{
					ID:        SeedID("asset", n),
					Title:     fmt.Sprintf("%s %d", titles[n%len(titles)], copyN+1),
					Kind:      kind,
					State:     state,
					CreatedAt: created,
					UpdatedAt: created.Add(30 * time.Minute),
				}
				decorate(&asset, copyN)
				if assets != nil {
					assets.Put(asset)
				}
				n++
			}
		}
	}

	if users == nil {
		return
	}
	roster := []struct {
		email string
		name  string
		role  models.UserRole
	}{
		{"admin@musicvine.test", "Ada Admin", models.RoleSuperAdmin},
		{"ops@musicvine.test", "Oscar Ops", models.RoleAdmin},
		{"rita@musicvine.test", "Rita Reviewer", models.RoleReviewer},
		{"rob@musicvine.test", "Rob Reviewer", models.RoleReviewer},
		{"vera@musicvine.test", "Vera Viewer", models.RoleViewer},
		{"contrib1@musicvine.test", "Cleo Contributor", models.RoleViewer},
		{"contrib2@musicvine.test", "Cal Contributor", models.RoleViewer},
	}
	for i, u := range roster {
		created := now.Add(-time.Duration(24*(i+1)) * time.Hour)
		users.Put(models.User{
			ID:        SeedID("user", i),
			Email:     u.email,
			FullName:  u.name,
			Role:      u.role,
			Active:    i != len(roster)-1,
			CreatedAt: created,
			UpdatedAt: created,
		})
	}
}

func decorate(asset *models.Asset, variant int) {
	platform := "music-vine"
	if variant%2 == 1 {
		platform = "uppbeat"
	}
	approvedAt := asset.UpdatedAt.Add(-10 * time.Minute)
	switch asset.State {
	case models.StateFinalApproval:
		asset.Platform = &platform
		asset.ApprovedAt = &approvedAt
	case models.StateApproved:
		asset.ApprovedAt = &approvedAt
	case models.StatePublished:
		publishedAt := asset.UpdatedAt
		asset.ApprovedAt = &approvedAt
		asset.PublishedAt = &publishedAt
		if asset.Kind == models.AssetKindMusic {
			asset.Platform = &platform
		}
	case models.StateRejected:
		comments := "audio clips above -1 dBFS"
		asset.RejectionComments = &comments
	}
}
