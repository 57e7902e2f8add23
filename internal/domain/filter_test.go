package domain

import (
	"math"
	"testing"
)

func TestRecordFilter_Offset(t *testing.T) {
	tests := []struct {
		name   string
		filter RecordFilter
		want   int
	}{
		{"first page", RecordFilter{Page: 1, Limit: 50}, 0},
		{"third page", RecordFilter{Page: 3, Limit: 25}, 50},
		{"unset page", RecordFilter{Limit: 25}, 0},
		{"overflowing page saturates", RecordFilter{Page: math.MaxInt, Limit: 2}, math.MaxInt},
		{"largest page that fits", RecordFilter{Page: math.MaxInt/1000 + 1, Limit: 1000}, math.MaxInt / 1000 * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Offset(); got != tt.want {
				t.Errorf("Offset() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecordFilter_Normalize(t *testing.T) {
	got := RecordFilter{Page: -3, Limit: 5000}.Normalize()
	if got.Page != 1 || got.Limit != MaxPageSize {
		t.Errorf("Normalize() = page %d limit %d, want 1 %d", got.Page, got.Limit, MaxPageSize)
	}
	if got := (RecordFilter{}).Normalize(); got.Limit != DefaultPageSize {
		t.Errorf("default limit = %d, want %d", got.Limit, DefaultPageSize)
	}
}
