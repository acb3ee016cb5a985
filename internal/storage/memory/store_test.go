package memory_test

import (
	"testing"

	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/ageniuscoder/duochat/backend/internal/storage/memory"
	"github.com/ageniuscoder/duochat/backend/internal/storage/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) chat.Store {
		return memory.New()
	})
}
