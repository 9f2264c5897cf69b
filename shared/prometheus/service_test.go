package prometheus

import (
	"testing"

	"github.com/hashgraph-online/flora-price-oracle/shared"
	"github.com/hashgraph-online/flora-price-oracle/shared/testutil"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

func TestLifecycle(t *testing.T) {
	hook := logTest.NewGlobal()
	prometheusService := NewPrometheusService(":2112", shared.NewServiceRegistry())

	prometheusService.Start()

	testutil.AssertLogsContain(t, hook, "Starting service")

	if err := prometheusService.Stop(); err != nil {
		t.Fatal(err)
	}
	testutil.AssertLogsContain(t, hook, "Stopping service")
}
