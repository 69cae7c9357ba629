package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-assess/internal/apperr"
	"github.com/mind-engage/mindengage-assess/internal/db/dbtest"
)

func TestCoursesByCategory(t *testing.T) {
	s := NewStore(dbtest.Open(t))
	ctx := context.Background()

	cat, err := s.CreateCategory(ctx, Category{Name: "Science"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateCategory(ctx, Category{Name: "Science"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate category err = %v", err)
	}
	phys, err := s.CreateCourse(ctx, Course{Title: "Physics", CategoryID: cat.ID, CreatedBy: "i1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateCourse(ctx, Course{Title: "Art"}); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListCourses(ctx, "", 0, 50)
	if err != nil || len(all) != 2 {
		t.Fatalf("all = %d, %v", len(all), err)
	}
	sci, err := s.ListCourses(ctx, cat.ID, 0, 50)
	if err != nil || len(sci) != 1 || sci[0].ID != phys.ID {
		t.Fatalf("science = %+v, %v", sci, err)
	}
	page, _ := s.ListCourses(ctx, "", 1, 1)
	if len(page) != 1 || page[0].Title != "Physics" {
		t.Fatalf("page = %+v", page)
	}

	if err := s.DeleteCourse(ctx, phys.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetCourse(ctx, phys.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get deleted err = %v", err)
	}
}

func TestCreateCourseValidation(t *testing.T) {
	s := NewStore(dbtest.Open(t))
	if _, err := s.CreateCourse(context.Background(), Course{Title: "  "}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}
