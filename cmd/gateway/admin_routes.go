package main

import (
	"context"

	"github.com/mind-engage/mindengage-assess/internal/admin"
	"github.com/mind-engage/mindengage-assess/internal/assessment"
	"github.com/mind-engage/mindengage-assess/internal/enrollment"
	"github.com/mind-engage/mindengage-assess/internal/flashcard"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	"github.com/mind-engage/mindengage-assess/internal/submission"
)

// adminRegistry lists the resources served under /api/admin. Listings run as
// an admin viewer; the route itself is guarded by admin:view.
func (a *app) adminRegistry() (*admin.Registry, error) {
	root := rbac.Viewer{ID: "admin-registry", Role: rbac.RoleAdmin}
	return admin.NewRegistry(a.log,
		admin.Resource{Name: "users", Title: "Users", List: func(ctx context.Context, offset, limit int) (any, error) {
			list, err := a.users.List(ctx, "")
			return page(list, offset, limit), err
		}},
		admin.Resource{Name: "courses", Title: "Courses", List: func(ctx context.Context, offset, limit int) (any, error) {
			return a.catalog.ListCourses(ctx, "", offset, limit)
		}},
		admin.Resource{Name: "products", Title: "Products", List: func(ctx context.Context, offset, limit int) (any, error) {
			return a.qbank.ListProducts(ctx, root, qbank.ProductFilter{Offset: offset, Limit: limit})
		}},
		admin.Resource{Name: "questions", Title: "Questions", List: func(ctx context.Context, offset, limit int) (any, error) {
			return a.qbank.ListQuestions(ctx, root, qbank.QuestionFilter{Offset: offset, Limit: limit})
		}},
		admin.Resource{Name: "assessments", Title: "Assessments", List: func(ctx context.Context, offset, limit int) (any, error) {
			return a.assessments.List(ctx, root, assessment.ListOpts{Offset: offset, Limit: limit})
		}},
		admin.Resource{Name: "submissions", Title: "Submissions", List: func(ctx context.Context, offset, limit int) (any, error) {
			return a.submissions.List(ctx, root, submission.ListOpts{Offset: offset, Limit: limit})
		}},
		admin.Resource{Name: "enrollments", Title: "Enrollments", List: func(ctx context.Context, offset, limit int) (any, error) {
			return a.enrollments.List(ctx, root, enrollment.ListOpts{Offset: offset, Limit: limit})
		}},
		admin.Resource{Name: "flashcards", Title: "Flashcards", List: func(ctx context.Context, offset, limit int) (any, error) {
			return a.flashcards.List(ctx, root, flashcard.Filter{Offset: offset, Limit: limit})
		}},
		admin.Resource{Name: "banners", Title: "Banners", List: func(ctx context.Context, offset, limit int) (any, error) {
			return a.content.ListBanners(ctx, "", offset, limit)
		}},
		admin.Resource{Name: "contact_messages", Title: "Contact messages", List: func(ctx context.Context, offset, limit int) (any, error) {
			return a.content.ListContacts(ctx, false, offset, limit)
		}},
	)
}

// page slices an already loaded list.
func page[T any](list []T, offset, limit int) []T {
	if offset >= len(list) {
		return []T{}
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end]
}
