package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/sirupsen/logrus"
)

func TestOpen_Scheme(t *testing.T) {
	var got string
	errSentinel := errors.New("opened")
	RegisterBackend(func(_ context.Context, cfg config.DatabaseConfig, log *logrus.Entry) (Store, error) {
		if log == nil {
			t.Error("expected a non-nil logger")
		}
		got = cfg.URL
		return nil, errSentinel
	}, "testdb")

	_, err := Open(context.Background(), config.DatabaseConfig{URL: "TESTDB://host/db"}, nil)
	if !errors.Is(err, errSentinel) || got != "TESTDB://host/db" {
		t.Errorf("expected registered opener to be called, got %v", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(context.Background(), config.DatabaseConfig{}, nil); err == nil {
		t.Error("expected error for empty URL")
	}

	_, err := Open(context.Background(), config.DatabaseConfig{URL: "sqlite://file.db"}, nil)
	if err == nil || !strings.Contains(err.Error(), "unsupported database scheme") {
		t.Errorf("expected unsupported scheme error, got %v", err)
	}
}

func TestFilterByName(t *testing.T) {
	persons := []Person{
		{ID: 1, FirstName: "Jan", LastName: "Novák"},
		{ID: 2, FirstName: "Jana", LastName: "Nováková"},
		{ID: 3, FirstName: "Petr", LastName: "Svoboda"},
	}

	tests := []struct {
		query string
		want  []int
	}{
		{"novak", []int{1, 2}},
		{"jana", []int{2}},
		{"petr svob", []int{3}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := FilterByName(persons, tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("FilterByName(%q) = %+v, want tags %v", tt.query, got, tt.want)
			}
			for i, p := range got {
				if p.ID != tt.want[i] {
					t.Errorf("FilterByName(%q)[%d] = %d, want %d", tt.query, i, p.ID, tt.want[i])
				}
			}
		})
	}
}

func TestPersonName(t *testing.T) {
	if got := (Person{FirstName: "Jan", LastName: "Novák"}).Name(); got != "Jan Novák" {
		t.Errorf("Name() = %q", got)
	}
}
