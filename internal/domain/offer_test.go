package domain

import (
	"errors"
	"testing"
)

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		in      string
		want    SortKey
		wantErr bool
	}{
		{"", SortByPrice, false},
		{"price", SortByPrice, false},
		{" Rating ", SortByRating, false},
		{"DISCOUNT", SortByDiscount, false},
		{"delivery", SortByDelivery, false},
		{"name", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSortKey(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSortKey) {
					t.Errorf("ParseSortKey(%q) error = %v, want ErrInvalidSortKey", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSortKey(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseSortKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
