package memory_test

import (
	"testing"

	"github.com/zhengren252/ntn-sub004/store"
	"github.com/zhengren252/ntn-sub004/store/memory"
	"github.com/zhengren252/ntn-sub004/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}
