package repo_test

import (
	"testing"

	"github.com/rskv-p/meshd/pkt"
	"github.com/rskv-p/meshd/repo"
	"github.com/stretchr/testify/assert"
)

func TestRegisterServiceTracksPendingInstance(t *testing.T) {
	r := repo.New()
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n1", Host: "h1", Port: 1, Kind: pkt.TCP}, nil)

	pending := r.PendingInstances("billing", "1")
	assert.Equal(t, []string{"n1"}, pending)

	insts := r.Instances("billing", "1")
	assert.Len(t, insts, 1)
	assert.Equal(t, "n1", insts[0].NodeID)
}

func TestVendorsRecordedOnce(t *testing.T) {
	r := repo.New()
	deps := []repo.Dep{{Service: "auth", Version: "1"}}
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n1"}, deps)
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n2"}, []repo.Dep{{Service: "other", Version: "9"}})

	got := r.Vendors("billing", "1")
	assert.Equal(t, deps, got)
}

func TestRemovePendingInstance(t *testing.T) {
	r := repo.New()
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n1"}, nil)
	r.RemovePendingInstance("billing", "1", "n1")
	assert.Empty(t, r.PendingInstances("billing", "1"))
}

func TestAddPendingServiceRequeuesKnownNode(t *testing.T) {
	r := repo.New()
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n1"}, nil)
	r.RemovePendingInstance("billing", "1", "n1")
	r.AddPendingService("billing", "1", "n1")
	assert.Equal(t, []string{"n1"}, r.PendingInstances("billing", "1"))
}

func TestConsumersFindsDependents(t *testing.T) {
	r := repo.New()
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n1"}, []repo.Dep{{Service: "auth", Version: "1"}})
	r.RegisterService("reports", "1", &repo.Instance{NodeID: "n2"}, []repo.Dep{{Service: "auth", Version: "1"}})

	consumers := r.Consumers("auth", "1")
	assert.Len(t, consumers, 2)
}

func TestNodeResolvesServiceAndInstance(t *testing.T) {
	r := repo.New()
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n1", Host: "h"}, nil)

	svc, ver, inst, ok := r.Node("n1")
	assert.True(t, ok)
	assert.Equal(t, "billing", svc)
	assert.Equal(t, "1", ver)
	assert.Equal(t, "h", inst.Host)

	_, _, _, ok = r.Node("missing")
	assert.False(t, ok)
}

func TestRemoveInstanceReportsWhenBucketEmptied(t *testing.T) {
	r := repo.New()
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n1"}, nil)
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n2"}, nil)

	assert.False(t, r.RemoveInstance("billing", "1", "n1"))
	assert.True(t, r.RemoveInstance("billing", "1", "n2"))
	assert.Empty(t, r.Instances("billing", "1"))
}

func TestPendingServicesOnlyListsUnactivated(t *testing.T) {
	r := repo.New()
	r.RegisterService("billing", "1", &repo.Instance{NodeID: "n1"}, nil)
	r.RegisterService("auth", "1", &repo.Instance{NodeID: "n2"}, nil)
	r.RemovePendingInstance("auth", "1", "n2")

	pending := r.PendingServices()
	assert.Equal(t, []repo.Dep{{Service: "billing", Version: "1"}}, pending)
}
