package tips

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumBySessionCountsEveryTip(t *testing.T) {
	assert.Contains(t, sumBySessionQuery, "WHERE session_id = $1")
	assert.NotContains(t, sumBySessionQuery, "status")
}
