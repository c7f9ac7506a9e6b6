package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		want        Params
		offset      int
	}{
		{"defaults", 0, 0, Params{Page: 1, Limit: 20}, 0},
		{"negative", -3, -1, Params{Page: 1, Limit: 20}, 0},
		{"third page", 3, 10, Params{Page: 3, Limit: 10}, 20},
		{"limit capped", 2, 500, Params{Page: 2, Limit: MaxLimit}, MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.page, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.offset, got.Offset())
		})
	}
}

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=abc&limit=5", nil)

	assert.Equal(t, Params{Page: 1, Limit: 5}, Parse(c))
}
