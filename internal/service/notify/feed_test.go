package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/balsam/internal/domain/models"
)

func TestFeedKeepsMostRecent(t *testing.T) {
	f := NewFeed(3, nil)
	for i := 1; i <= 5; i++ {
		f.Success(fmt.Sprintf("msg %d", i))
	}
	f.Error("boom")

	items := f.Recent()
	require.Len(t, items, 3)
	assert.Equal(t, "msg 4", items[0].Message)
	assert.Equal(t, "msg 5", items[1].Message)
	assert.Equal(t, "boom", items[2].Message)
	assert.Equal(t, models.NotifyError, items[2].Level)
	assert.False(t, items[2].At.IsZero())
}
