package memory

import (
	"testing"

	"github.com/porthorian/memberdir/pkg/storage"
	"github.com/porthorian/memberdir/pkg/storage/testsuite"
)

func TestStoreContract(t *testing.T) {
	testsuite.RunStoreContract(t, func(t *testing.T) storage.Store {
		return NewStore()
	})
}
