package actionlog

import (
	"context"
	"testing"
	"time"

	"aria/internal/storage"
	memstore "aria/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_AppendIsDurable(t *testing.T) {
	store := memstore.NewActionLogStore()
	l := New(store, nil)
	defer l.Close()

	l.Append(context.Background(), storage.ActionLog{UserID: "u1", ToolName: "list.add", Success: true})
	require.Eventually(t, func() bool {
		rows, err := l.Recent(context.Background(), "u1", time.Now().Add(-time.Minute))
		return err == nil && len(rows) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLogger_DropsOldestOnOverflow(t *testing.T) {
	store := memstore.NewActionLogStore()
	l := New(store, nil)
	defer l.Close()

	for i := 0; i < bufferCapacity+10; i++ {
		l.Append(context.Background(), storage.ActionLog{UserID: "u2", ToolName: "list.add", Success: true})
	}
	assert.Eventually(t, func() bool {
		return l.OverflowCount("u2") >= 10
	}, time.Second, 5*time.Millisecond)
}
