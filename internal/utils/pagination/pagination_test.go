package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		want        Pagination
	}{
		{"defaults", 0, 0, Pagination{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"third page", 3, 20, Pagination{Page: 3, Limit: 20, Offset: 40}},
		{"limit capped", 1, 1000, Pagination{Page: 1, Limit: MaxLimit, Offset: 0}},
		{"negative page", -2, 5, Pagination{Page: 1, Limit: 5, Offset: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.page, tt.limit))
		})
	}
}

func TestTotalPages(t *testing.T) {
	p := New(1, 10)
	p.Total = 21
	assert.Equal(t, int64(3), p.TotalPages())

	p.Total = 20
	assert.Equal(t, int64(2), p.TotalPages())

	p.Total = 0
	assert.Equal(t, int64(0), p.TotalPages())
}
